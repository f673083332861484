package amqp

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	amqplib "github.com/rabbitmq/amqp091-go"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/queue"
)

type fakeAcknowledger struct {
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (f *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	f.nacked = append(f.nacked, tag)
	f.requeue = append(f.requeue, requeue)
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func TestToJobMessage(t *testing.T) {
	job := domain.EvaluationJob{
		JobID:        uuid.New(),
		SubmissionID: uuid.New(),
		UserID:       "u1",
		Problem: domain.Problem{
			ID:         "p1",
			Difficulty: domain.DifficultyHard,
			TestCases:  []domain.TestCase{{ID: "tc1", Input: "1", Output: "1"}},
		},
		Code:     "print(input())",
		Language: domain.LangPython,
	}
	body, _ := json.Marshal(job)

	ack := &fakeAcknowledger{}
	d := amqplib.Delivery{
		Acknowledger: ack,
		DeliveryTag:  7,
		Body:         body,
		Headers:      amqplib.Table{queue.DeliveryCountHeader: int64(2)},
	}

	msg, err := toJobMessage(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Job.SubmissionID != job.SubmissionID {
		t.Errorf("submission id mismatch")
	}
	if msg.Attempt != 3 {
		t.Errorf("expected attempt 3, got %d", msg.Attempt)
	}
	if msg.Job.Problem.TestCases[0].ID != "tc1" {
		t.Errorf("test cases not decoded: %+v", msg.Job.Problem)
	}

	if err := msg.Ack(); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := msg.Nack(false); err != nil {
		t.Fatalf("nack: %v", err)
	}
	if len(ack.acked) != 1 || ack.acked[0] != 7 {
		t.Errorf("expected ack of tag 7, got %v", ack.acked)
	}
	if len(ack.nacked) != 1 || ack.requeue[0] {
		t.Errorf("expected nack without requeue, got %v %v", ack.nacked, ack.requeue)
	}
}

func TestToJobMessage_BadBody(t *testing.T) {
	if _, err := toJobMessage(amqplib.Delivery{Body: []byte("{not json")}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestReconnectDelay(t *testing.T) {
	if d := reconnectDelay(0); d != baseReconnectDelay {
		t.Errorf("expected %v, got %v", baseReconnectDelay, d)
	}
	if d := reconnectDelay(2); d != 4*time.Second {
		t.Errorf("expected 4s, got %v", d)
	}
	if d := reconnectDelay(20); d != maxReconnectDelay {
		t.Errorf("expected cap %v, got %v", maxReconnectDelay, d)
	}
}
