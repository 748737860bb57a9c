package orchestrator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrQAChannelClosed is returned when the answer handler has stopped.
var ErrQAChannelClosed = errors.New("qa channel closed")

// Question is a prompt from a parked interactive task.
type Question struct {
	TaskID     string
	Prompt     string
	ctx        context.Context
	responseCh chan Answer
}

// Answer is the user's reply to a Question.
type Answer struct {
	Content string
	Error   error
}

// AnswerFunc obtains a reply from the user, e.g. from a terminal or the TUI.
type AnswerFunc func(ctx context.Context, taskID string, prompt string) (string, error)

// QAChannel serializes user prompts from concurrently running tasks onto a
// single answer source. It implements agent.UserInput.
type QAChannel struct {
	questionCh chan Question
	answerFn   AnswerFunc
	done       chan struct{}
}

// NewQAChannel creates a Q&A channel with the given buffer size and answer function.
// bufferSize should typically be 2x the scheduler concurrency to prevent blocking.
func NewQAChannel(bufferSize int, answerFn AnswerFunc) *QAChannel {
	return &QAChannel{
		questionCh: make(chan Question, bufferSize),
		answerFn:   answerFn,
		done:       make(chan struct{}),
	}
}

// Start launches the question handler goroutine.
// It processes questions until the context is cancelled.
func (qac *QAChannel) Start(ctx context.Context) {
	go qac.handleQuestions(ctx)
}

func (qac *QAChannel) handleQuestions(ctx context.Context) {
	defer close(qac.done)

	for {
		select {
		case <-ctx.Done():
			return
		case q := <-qac.questionCh:
			// The asker gave up while queued; its line belongs to the next question.
			if q.ctx.Err() != nil {
				continue
			}
			askCtx, cancel := context.WithCancel(q.ctx)
			stop := context.AfterFunc(ctx, cancel)
			content, err := qac.answerFn(askCtx, q.TaskID, q.Prompt)
			stop()
			cancel()

			select {
			case <-ctx.Done():
				q.responseCh <- Answer{Error: ctx.Err()}
				return
			default:
				q.responseCh <- Answer{Content: content, Error: err}
			}
		}
	}
}

// AwaitUserInput queues prompt for the user and waits for the answer.
// It respects context cancellation at both the send and receive stages.
func (qac *QAChannel) AwaitUserInput(ctx context.Context, taskID string, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	responseCh := make(chan Answer, 1)
	q := Question{
		TaskID:     taskID,
		Prompt:     prompt,
		ctx:        ctx,
		responseCh: responseCh,
	}

	select {
	case qac.questionCh <- q:
	case <-qac.done:
		return "", ErrQAChannelClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case answer := <-responseCh:
		if answer.Error != nil {
			return "", answer.Error
		}
		return answer.Content, nil
	case <-qac.done:
		// The handler may have answered just before exiting
		select {
		case answer := <-responseCh:
			return answer.Content, answer.Error
		default:
			return "", ErrQAChannelClosed
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Stop blocks until the handler goroutine has exited.
func (qac *QAChannel) Stop() {
	<-qac.done
}

// LineAnswerer returns an AnswerFunc that writes each prompt to out and
// reads one line from in as the answer. Lines are read by a single
// background goroutine so a cancelled prompt does not lose input.
func LineAnswerer(in io.Reader, out io.Writer) AnswerFunc {
	var once sync.Once
	lines := make(chan string)
	readErr := make(chan error, 1)

	start := func() {
		go func() {
			scanner := bufio.NewScanner(in)
			for scanner.Scan() {
				lines <- scanner.Text()
			}
			err := scanner.Err()
			if err == nil {
				err = io.EOF
			}
			readErr <- err
			close(lines)
		}()
	}

	return func(ctx context.Context, taskID, prompt string) (string, error) {
		once.Do(start)
		fmt.Fprintf(out, "\n[%s] %s\n> ", taskID, prompt)

		select {
		case line, ok := <-lines:
			if !ok {
				err := <-readErr
				readErr <- err
				return "", fmt.Errorf("read answer: %w", err)
			}
			return line, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
