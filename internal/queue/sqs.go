package queue

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/rs/zerolog/log"
)

type SqsConfig struct {
	QueueURL        string
	Region          string
	WaitTimeSeconds int
}

type SqsQueue struct {
	config   *SqsConfig
	sqsQueue sqsiface.SQSAPI
	handler  Handler

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newSqsQueue(config *Config, handler Handler) (*SqsQueue, error) {
	options := session.Options{SharedConfigState: session.SharedConfigEnable}

	if config.Sqs.Region != "" {
		options.Config.Region = aws.String(config.Sqs.Region)
	}

	sess := session.Must(session.NewSessionWithOptions(options))

	return startSqsQueue(config, sqs.New(sess), handler), nil
}

func startSqsQueue(config *Config, client sqsiface.SQSAPI, handler Handler) *SqsQueue {
	ctx, cancel := context.WithCancel(context.Background())

	queue := &SqsQueue{
		config:   config.Sqs,
		sqsQueue: client,
		handler:  handler,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	// a consumer polls in its own go routine until the queue is stopped
	if config.Consumer {
		go queue.startPollingMessages()
	} else {
		close(queue.done)
	}

	return queue
}

func (s *SqsQueue) startPollingMessages() {
	defer close(s.done)

	for s.ctx.Err() == nil {
		output, err := s.sqsQueue.ReceiveMessageWithContext(s.ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(s.config.QueueURL),
			MaxNumberOfMessages: aws.Int64(1),
			WaitTimeSeconds:     aws.Int64(int64(s.config.WaitTimeSeconds)),
		})

		if err != nil {
			if s.ctx.Err() == nil {
				log.Error().Err(err).Msg("failed to gather SQS messages")
			}

			continue
		}

		for _, message := range output.Messages {
			s.handleMessage(message)
		}
	}
}

func (s *SqsQueue) handleMessage(m *sqs.Message) {
	if body := aws.StringValue(m.Body); body != "" {
		if err := s.handler(s.ctx, []byte(body)); err != nil {
			// left on the queue, it becomes visible again after the timeout
			log.Error().Err(err).Str("id", aws.StringValue(m.MessageId)).
				Msg("failed to handle incoming submission message")
			return
		}
	}

	if _, err := s.sqsQueue.DeleteMessage(&sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.config.QueueURL),
		ReceiptHandle: m.ReceiptHandle,
	}); err != nil {
		log.Error().Err(err).Str("id", aws.StringValue(m.MessageId)).
			Msg("failed to delete submission message")
	}
}

func (s *SqsQueue) SubmitMessageToQueue(body []byte) error {
	_, err := s.sqsQueue.SendMessage(&sqs.SendMessageInput{
		MessageBody: aws.String(string(body)),
		QueueUrl:    aws.String(s.config.QueueURL),
	})

	return err
}

func (s *SqsQueue) Stop() {
	log.Info().Msg("stopping SQS queue")

	s.cancel()
	<-s.done
}
