package queue

import (
	"context"

	"github.com/nsqio/go-nsq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type NsqConfig struct {
	Topic   string
	Channel string
	Address string
}

type NsqQueue struct {
	config   *NsqConfig
	producer *nsq.Producer
	consumer *nsq.Consumer
}

type nsqMessageHandler struct {
	handler Handler
}

func NewNsqProducer(config *NsqConfig) (*nsq.Producer, error) {
	return nsq.NewProducer(config.Address, nsq.NewConfig())
}

func newNsqQueue(config *Config, handler Handler) (*NsqQueue, error) {
	producer, err := NewNsqProducer(config.Nsq)

	if err != nil {
		return nil, errors.Wrap(err, "failed to create NSQ producer")
	}

	queue := &NsqQueue{config: config.Nsq, producer: producer}

	if !config.Consumer {
		return queue, nil
	}

	nsqConfig := nsq.NewConfig()
	// one message in flight keeps the pipeline strictly sequential
	nsqConfig.MaxInFlight = 1

	consumer, err := nsq.NewConsumer(config.Nsq.Topic, config.Nsq.Channel, nsqConfig)

	if err != nil {
		producer.Stop()
		return nil, errors.Wrap(err, "failed to create NSQ consumer")
	}

	consumer.AddHandler(&nsqMessageHandler{handler: handler})

	if err = consumer.ConnectToNSQD(config.Nsq.Address); err != nil {
		producer.Stop()
		return nil, errors.Wrap(err, "failed to connect to NSQD")
	}

	queue.consumer = consumer
	return queue, nil
}

func (h *nsqMessageHandler) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	return h.handler(context.Background(), m.Body)
}

func (n *NsqQueue) SubmitMessageToQueue(body []byte) error {
	return n.producer.Publish(n.config.Topic, body)
}

func (n *NsqQueue) Stop() {
	log.Info().Msg("stopping NSQ queue")

	if n.consumer != nil {
		n.consumer.Stop()
		<-n.consumer.StopChan
	}

	n.producer.Stop()
}
