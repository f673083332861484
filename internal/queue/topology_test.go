package queue

import (
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

type recordingDeclarer struct {
	exchanges []string
	queues    map[string]amqp.Table
	bindings  []string
	failOn    string
}

func (d *recordingDeclarer) ExchangeDeclare(name, _ string, _, _, _, _ bool, _ amqp.Table) error {
	if name == d.failOn {
		return errors.New("boom")
	}
	d.exchanges = append(d.exchanges, name)
	return nil
}

func (d *recordingDeclarer) QueueDeclare(name string, _, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	if name == d.failOn {
		return amqp.Queue{}, errors.New("boom")
	}
	if d.queues == nil {
		d.queues = map[string]amqp.Table{}
	}
	d.queues[name] = args
	return amqp.Queue{Name: name}, nil
}

func (d *recordingDeclarer) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	d.bindings = append(d.bindings, exchange+"->"+key+"->"+name)
	return nil
}

func TestDeclare(t *testing.T) {
	d := &recordingDeclarer{}
	if err := Declare(d, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(d.exchanges) != 2 {
		t.Errorf("expected 2 exchanges, got %v", d.exchanges)
	}
	args := d.queues[Queue]
	if args["x-queue-type"] != "quorum" {
		t.Errorf("expected quorum queue, got %v", args["x-queue-type"])
	}
	if args["x-delivery-limit"] != int64(5) {
		t.Errorf("expected delivery limit 5, got %v", args["x-delivery-limit"])
	}
	if args["x-dead-letter-exchange"] != DeadExchange {
		t.Errorf("expected DLX %s, got %v", DeadExchange, args["x-dead-letter-exchange"])
	}
	want := Exchange + "->" + RoutingKey + "->" + Queue
	found := false
	for _, b := range d.bindings {
		if b == want {
			found = true
		}
	}
	if !found {
		t.Errorf("expected binding %s, got %v", want, d.bindings)
	}
}

func TestDeclare_PropagatesErrors(t *testing.T) {
	d := &recordingDeclarer{failOn: Queue}
	if err := Declare(d, 5); err == nil {
		t.Fatal("expected error")
	}
}

func TestAttempt(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"first delivery", nil, 1},
		{"int64 count", amqp.Table{DeliveryCountHeader: int64(2)}, 3},
		{"int32 count", amqp.Table{DeliveryCountHeader: int32(1)}, 2},
		{"garbage", amqp.Table{DeliveryCountHeader: "x"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Attempt(tt.headers); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
