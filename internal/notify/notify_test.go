package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/nsqio/go-nsq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"judge-engine/internal/notify/mock_notify"
	"judge-engine/internal/repository"
	"judge-engine/internal/testcase"
)

func TestBroadcasterWakesEveryWaiter(t *testing.T) {
	broadcaster := NewBroadcaster()

	first, cancelFirst := broadcaster.Subscribe("a")
	defer cancelFirst()

	second, cancelSecond := broadcaster.Subscribe("a")
	defer cancelSecond()

	other, cancelOther := broadcaster.Subscribe("b")
	defer cancelOther()

	assert.Equal(t, 2, broadcaster.Waiting())

	submission := &repository.Submission{ID: "a", Status: testcase.Accepted}
	require.NoError(t, broadcaster.Notify(context.Background(), submission))

	for _, channel := range []<-chan *repository.Submission{first, second} {
		select {
		case got := <-channel:
			assert.Equal(t, submission, got)
		case <-time.After(time.Second):
			t.Fatal("waiter was not woken")
		}
	}

	select {
	case <-other:
		t.Fatal("unrelated waiter was woken")
	default:
	}

	assert.Equal(t, 1, broadcaster.Waiting())
}

func TestBroadcasterCancel(t *testing.T) {
	broadcaster := NewBroadcaster()

	_, cancel := broadcaster.Subscribe("a")
	cancel()

	assert.Equal(t, 0, broadcaster.Waiting())
	require.NoError(t, broadcaster.Notify(context.Background(), &repository.Submission{ID: "a"}))
}

func TestMultiNotifiesEveryone(t *testing.T) {
	ctrl := gomock.NewController(t)

	submission := &repository.Submission{ID: "a"}

	failing := mock_notify.NewMockNotifier(ctrl)
	failing.EXPECT().Notify(gomock.Any(), submission).Return(errors.New("offline"))

	working := mock_notify.NewMockNotifier(ctrl)
	working.EXPECT().Notify(gomock.Any(), submission).Return(nil)

	err := Multi{failing, LogNotifier{}, working}.Notify(context.Background(), submission)
	assert.ErrorContains(t, err, "offline")
}

type fakePublisher struct {
	topic string
	body  []byte
}

func (f *fakePublisher) Publish(topic string, body []byte) error {
	f.topic = topic
	f.body = body
	return nil
}

func TestNsqNotifierRoundTrip(t *testing.T) {
	producer := &fakePublisher{}
	notifier := &NsqNotifier{topic: "completed", producer: producer}

	err := notifier.Notify(context.Background(), &repository.Submission{
		ID:      "a",
		Status:  testcase.WrongAnswer,
		Code:    "not published",
		Message: "1 of 3 test cases failed",
	})
	require.NoError(t, err)

	assert.Equal(t, "completed", producer.topic)

	var event Event
	require.NoError(t, json.Unmarshal(producer.body, &event))
	assert.Equal(t, Event{ID: "a", Status: testcase.WrongAnswer, Message: "1 of 3 test cases failed"}, event)

	broadcaster := NewBroadcaster()
	channel, cancel := broadcaster.Subscribe("a")
	defer cancel()

	var id nsq.MessageID
	handler := &nsqEventHandler{notifier: broadcaster}

	require.NoError(t, handler.HandleMessage(nsq.NewMessage(id, []byte("not json"))))
	require.NoError(t, handler.HandleMessage(nsq.NewMessage(id, producer.body)))

	got := <-channel
	assert.Equal(t, testcase.WrongAnswer, got.Status)
}
