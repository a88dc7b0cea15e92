package notify

import (
	"context"
	"encoding/json"

	"github.com/nsqio/go-nsq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"judge-engine/internal/repository"
	"judge-engine/internal/testcase"
)

// Event is the message published when a submission completes.
type Event struct {
	ID      string           `json:"id"`
	Status  testcase.Verdict `json:"status"`
	Message string           `json:"message,omitempty"`
}

type publisher interface {
	Publish(topic string, body []byte) error
}

type NsqConfig struct {
	Topic   string
	Channel string
	Address string
}

// NsqNotifier publishes completion events for other services, the API
// relays them to its long poll waiters.
type NsqNotifier struct {
	topic    string
	producer publisher
}

func NewNsqNotifier(config *NsqConfig) (*NsqNotifier, error) {
	producer, err := nsq.NewProducer(config.Address, nsq.NewConfig())

	if err != nil {
		return nil, errors.Wrap(err, "failed to create NSQ notification producer")
	}

	return &NsqNotifier{topic: config.Topic, producer: producer}, nil
}

func (n *NsqNotifier) Notify(_ context.Context, submission *repository.Submission) error {
	body, err := json.Marshal(Event{
		ID:      submission.ID,
		Status:  submission.Status,
		Message: submission.Message,
	})

	if err != nil {
		return errors.Wrap(err, "failed to encode notification")
	}

	return n.producer.Publish(n.topic, body)
}

func (n *NsqNotifier) Stop() {
	if producer, ok := n.producer.(*nsq.Producer); ok {
		producer.Stop()
	}
}

// NsqListener relays completion events from the topic to a local notifier.
type NsqListener struct {
	consumer *nsq.Consumer
}

type nsqEventHandler struct {
	notifier Notifier
}

func NewNsqListener(config *NsqConfig, notifier Notifier) (*NsqListener, error) {
	consumer, err := nsq.NewConsumer(config.Topic, config.Channel, nsq.NewConfig())

	if err != nil {
		return nil, errors.Wrap(err, "failed to create NSQ notification consumer")
	}

	consumer.AddHandler(&nsqEventHandler{notifier: notifier})

	if err := consumer.ConnectToNSQD(config.Address); err != nil {
		return nil, errors.Wrap(err, "failed to connect to NSQD")
	}

	return &NsqListener{consumer: consumer}, nil
}

func (h *nsqEventHandler) HandleMessage(m *nsq.Message) error {
	var event Event

	if err := json.Unmarshal(m.Body, &event); err != nil {
		// a malformed event will never decode, drop it
		log.Warn().Err(err).Msg("dropping malformed notification")
		return nil
	}

	return h.notifier.Notify(context.Background(), &repository.Submission{
		ID:      event.ID,
		Status:  event.Status,
		Message: event.Message,
	})
}

func (l *NsqListener) Stop() {
	log.Info().Msg("stopping NSQ notification listener")

	l.consumer.Stop()
	<-l.consumer.StopChan
}
