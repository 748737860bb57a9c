package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aristath/taskflow/internal/agent"
)

// mockAnswer is a test answer function that returns formatted responses
func mockAnswer(ctx context.Context, taskID, prompt string) (string, error) {
	return fmt.Sprintf("answer for %s: %s", taskID, prompt), nil
}

// TestAskAndReceive verifies basic ask-and-receive functionality
func TestAskAndReceive(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	qac := NewQAChannel(10, mockAnswer)
	qac.Start(ctx)
	defer qac.Stop()

	answer, err := qac.AwaitUserInput(ctx, "task1", "which color?")
	if err != nil {
		t.Fatalf("AwaitUserInput failed: %v", err)
	}

	expected := "answer for task1: which color?"
	if answer != expected {
		t.Errorf("Expected %q, got %q", expected, answer)
	}
}

// TestMultipleConcurrentAskers verifies that several parked tasks can ask
// concurrently without cross-talk
func TestMultipleConcurrentAskers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	qac := NewQAChannel(10, mockAnswer)
	qac.Start(ctx)
	defer qac.Stop()

	var wg sync.WaitGroup
	results := make(map[string]string)
	var mu sync.Mutex

	taskIDs := []string{"task1", "task2", "task3", "task4"}

	for _, taskID := range taskIDs {
		wg.Add(1)
		go func(tid string) {
			defer wg.Done()
			answer, err := qac.AwaitUserInput(ctx, tid, "question from "+tid)
			if err != nil {
				t.Errorf("Ask from %s failed: %v", tid, err)
				return
			}
			mu.Lock()
			results[tid] = answer
			mu.Unlock()
		}(taskID)
	}

	wg.Wait()

	// Verify all 4 got answers with correct taskID routing
	if len(results) != 4 {
		t.Fatalf("Expected 4 results, got %d", len(results))
	}

	for _, taskID := range taskIDs {
		expected := fmt.Sprintf("answer for %s: question from %s", taskID, taskID)
		if results[taskID] != expected {
			t.Errorf("Task %s: expected %q, got %q", taskID, expected, results[taskID])
		}
	}
}

// TestContextCancellation_AskBlocked verifies that AwaitUserInput returns promptly
// when context is cancelled while trying to send a question
func TestContextCancellation_AskBlocked(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Use buffer size 1
	qac := NewQAChannel(1, mockAnswer)
	qac.Start(ctx)
	defer qac.Stop()

	// Fill the buffer by sending a question without consuming it
	go qac.AwaitUserInput(ctx, "blocker", "this will fill the buffer")

	// Give it time to fill the buffer
	time.Sleep(50 * time.Millisecond)

	// Now try to ask with a cancelled context
	askCtx, askCancel := context.WithCancel(context.Background())
	askCancel() // Cancel before asking

	start := time.Now()
	_, err := qac.AwaitUserInput(askCtx, "task1", "should fail quickly")
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Expected error from cancelled context, got nil")
	}

	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	if elapsed > 100*time.Millisecond {
		t.Errorf("AwaitUserInput took %v, expected < 100ms", elapsed)
	}
}

// TestContextCancellation_StopsHandler verifies that cancelling the context
// stops the handler goroutine cleanly
func TestContextCancellation_StopsHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	qac := NewQAChannel(10, mockAnswer)
	qac.Start(ctx)

	// Cancel context
	cancel()

	// Stop should return promptly as handler exits
	done := make(chan struct{})
	go func() {
		qac.Stop()
		close(done)
	}()

	select {
	case <-done:
		// Success - handler exited cleanly
	case <-time.After(1 * time.Second):
		t.Fatal("Stop did not return within 1 second")
	}
}

// TestSlowAnswer_DoesNotBlockOthers verifies that slow answers don't block
// other callers from sending questions (though answers are processed serially)
func TestSlowAnswer_DoesNotBlockOthers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	slowAnswer := func(ctx context.Context, taskID, question string) (string, error) {
		if taskID == "slow" {
			time.Sleep(200 * time.Millisecond)
		}
		return fmt.Sprintf("answer for %s", taskID), nil
	}

	qac := NewQAChannel(10, slowAnswer)
	qac.Start(ctx)
	defer qac.Stop()

	var wg sync.WaitGroup
	results := make(chan string, 2)

	// Launch slow ask
	wg.Add(1)
	go func() {
		defer wg.Done()
		start := time.Now()
		answer, err := qac.AwaitUserInput(ctx, "slow", "slow question")
		if err != nil {
			t.Errorf("Slow ask failed: %v", err)
			return
		}
		results <- fmt.Sprintf("slow completed at %v: %s", time.Since(start), answer)
	}()

	// Give slow task time to start processing
	time.Sleep(50 * time.Millisecond)

	// Launch fast ask
	wg.Add(1)
	go func() {
		defer wg.Done()
		start := time.Now()
		answer, err := qac.AwaitUserInput(ctx, "fast", "fast question")
		if err != nil {
			t.Errorf("Fast ask failed: %v", err)
			return
		}
		results <- fmt.Sprintf("fast completed at %v: %s", time.Since(start), answer)
	}()

	wg.Wait()
	close(results)

	// Both should complete (verifies non-blocking send)
	count := 0
	for result := range results {
		t.Log(result)
		count++
	}

	if count != 2 {
		t.Errorf("Expected 2 results, got %d", count)
	}
}

// TestAnswerError verifies that errors from the answer function are
// propagated correctly to the caller
func TestAnswerError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errorAnswer := func(ctx context.Context, taskID, question string) (string, error) {
		return "", fmt.Errorf("answer function error")
	}

	qac := NewQAChannel(10, errorAnswer)
	qac.Start(ctx)
	defer qac.Stop()

	_, err := qac.AwaitUserInput(ctx, "task1", "question")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	if err.Error() != "answer function error" {
		t.Errorf("Expected 'answer function error', got %q", err.Error())
	}
}

// TestAskAfterStop verifies that asking on a cancelled context returns an error
func TestAskAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	qac := NewQAChannel(10, mockAnswer)
	qac.Start(ctx)

	// Cancel and wait for stop
	cancel()
	qac.Stop()

	// Attempt to ask with cancelled context
	_, err := qac.AwaitUserInput(ctx, "task1", "question after stop")
	if err == nil {
		t.Fatal("Expected error from cancelled context, got nil")
	}

	if err != context.Canceled && err != ErrQAChannelClosed {
		t.Errorf("Expected context.Canceled or ErrQAChannelClosed, got %v", err)
	}
}

var _ agent.UserInput = (*QAChannel)(nil)

// TestAwaitAfterHandlerExit verifies that a live caller is not stranded once
// the handler has stopped
func TestAwaitAfterHandlerExit(t *testing.T) {
	handlerCtx, cancel := context.WithCancel(context.Background())
	qac := NewQAChannel(0, mockAnswer)
	qac.Start(handlerCtx)
	cancel()
	qac.Stop()

	_, err := qac.AwaitUserInput(context.Background(), "task1", "anyone?")
	if err != ErrQAChannelClosed {
		t.Errorf("Expected ErrQAChannelClosed, got %v", err)
	}
}

// TestLineAnswerer verifies prompts are written and answers read line by line
func TestLineAnswerer(t *testing.T) {
	in := strings.NewReader("blue\n42\n")
	var out bytes.Buffer
	answer := LineAnswerer(in, &out)
	ctx := context.Background()

	first, err := answer(ctx, "color", "Which color?")
	if err != nil || first != "blue" {
		t.Fatalf("first answer = %q, %v", first, err)
	}
	second, err := answer(ctx, "count", "How many?")
	if err != nil || second != "42" {
		t.Fatalf("second answer = %q, %v", second, err)
	}
	if !strings.Contains(out.String(), "[color] Which color?") {
		t.Errorf("prompt not written, got %q", out.String())
	}

	if _, err := answer(ctx, "more", "Again?"); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF after input is exhausted, got %v", err)
	}
}

func TestTimedOutQuestion_DoesNotConsumeNextAnswer(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	qac := NewQAChannel(4, LineAnswerer(pr, io.Discard))
	qac.Start(ctx)

	short, cancelShort := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancelShort()
	if _, err := qac.AwaitUserInput(short, "a", "First?"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded for task a, got %v", err)
	}

	go func() {
		// Give the handler time to notice a's deadline before the line arrives
		time.Sleep(20 * time.Millisecond)
		_, _ = pw.Write([]byte("answer-for-b\n"))
	}()

	waitCtx, cancelWait := context.WithTimeout(ctx, 2*time.Second)
	defer cancelWait()
	got, err := qac.AwaitUserInput(waitCtx, "b", "Second?")
	if err != nil {
		t.Fatalf("task b: %v", err)
	}
	if got != "answer-for-b" {
		t.Errorf("task b answer = %q, want %q", got, "answer-for-b")
	}
}

func TestQueuedQuestion_DroppedAfterAskerGivesUp(t *testing.T) {
	var mu sync.Mutex
	var asked []string
	release := make(chan struct{})
	answerFn := func(ctx context.Context, taskID, prompt string) (string, error) {
		mu.Lock()
		asked = append(asked, taskID)
		mu.Unlock()
		if taskID == "slow" {
			<-release
		}
		return "ok", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	qac := NewQAChannel(4, answerFn)
	qac.Start(ctx)

	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		_, _ = qac.AwaitUserInput(ctx, "slow", "Hold on")
	}()
	time.Sleep(20 * time.Millisecond)

	gone, cancelGone := context.WithCancel(ctx)
	goneDone := make(chan error, 1)
	go func() {
		_, err := qac.AwaitUserInput(gone, "gone", "Anyone?")
		goneDone <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancelGone()
	if err := <-goneDone; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}

	close(release)
	<-slowDone
	if got, err := qac.AwaitUserInput(ctx, "next", "Now?"); err != nil || got != "ok" {
		t.Fatalf("next answer = %q, %v", got, err)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, id := range asked {
		if id == "gone" {
			t.Errorf("answer function was called for a question whose asker had left: %v", asked)
		}
	}
}
