package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestDispatcherDispatchSingle(t *testing.T) {
	cases := []struct {
		name      string
		token     string
		channel   *pushChannelStub
		delivered bool
		calls     int
	}{
		{name: "delivered", token: "tok-1", channel: &pushChannelStub{}, delivered: true, calls: 1},
		{name: "invalid token", token: "garbage", channel: &pushChannelStub{}, calls: 0},
		{name: "transport failure", token: "tok-1", channel: &pushChannelStub{failTokens: map[string]bool{"tok-1": true}}, calls: 1},
		{name: "ticket rejected", token: "tok-1", channel: &pushChannelStub{rejected: map[string]string{"tok-1": "DeviceNotRegistered"}}, calls: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDispatcher(tc.channel, &notificationStoreStub{}, nil, fixedNow, DispatcherConfig{})
			result := d.DispatchSingle(context.Background(), PushRequest{Token: tc.token, Title: "Hi"})
			if result.Delivered != tc.delivered {
				t.Fatalf("expected delivered=%v, got %#v", tc.delivered, result)
			}
			if !tc.delivered {
				var chErr *ChannelError
				if !errors.As(result.Err, &chErr) {
					t.Fatalf("expected ChannelError, got %v", result.Err)
				}
			}
			if tc.channel.batchCount() != tc.calls {
				t.Fatalf("expected %d channel calls, got %d", tc.calls, tc.channel.batchCount())
			}
		})
	}
}

func TestDispatcherDispatchBulkBatching(t *testing.T) {
	channel := &pushChannelStub{maxBatch: 3}
	d := NewDispatcher(channel, &notificationStoreStub{}, nil, fixedNow, DispatcherConfig{Concurrency: 2})

	reqs := make([]PushRequest, 0, 8)
	for i := 0; i < 7; i++ {
		reqs = append(reqs, PushRequest{Token: fmt.Sprintf("tok-%d", i)})
	}
	reqs = append(reqs, PushRequest{Token: "not-a-token"})

	results := d.DispatchBulk(context.Background(), reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if channel.batchCount() != 3 {
		t.Fatalf("expected 3 batches for 7 valid tokens, got %d", channel.batchCount())
	}
	for i, r := range results[:7] {
		if !r.Delivered || r.Token != reqs[i].Token || r.TicketID != "ticket-"+reqs[i].Token {
			t.Fatalf("result %d out of order or failed: %#v", i, r)
		}
	}
	if results[7].Delivered || results[7].Err == nil {
		t.Fatalf("expected invalid token to fail, got %#v", results[7])
	}
	for _, batch := range channel.batches {
		if len(batch) > 3 {
			t.Fatalf("batch exceeds max size: %d", len(batch))
		}
	}
}

func TestDispatcherDispatchBulkPartialFailure(t *testing.T) {
	channel := &pushChannelStub{maxBatch: 2, failTokens: map[string]bool{"tok-2": true}}
	d := NewDispatcher(channel, &notificationStoreStub{}, nil, fixedNow, DispatcherConfig{})

	reqs := []PushRequest{{Token: "tok-0"}, {Token: "tok-1"}, {Token: "tok-2"}, {Token: "tok-3"}, {Token: "tok-4"}}
	results := d.DispatchBulk(context.Background(), reqs)

	for i, r := range results {
		failedBatch := i == 2 || i == 3
		if r.Delivered == failedBatch {
			t.Fatalf("result %d: expected delivered=%v, got %#v", i, !failedBatch, r)
		}
		if failedBatch && !errors.Is(r.Err, errChannelDown) {
			t.Fatalf("result %d: expected wrapped channel error, got %v", i, r.Err)
		}
	}
	if channel.batchCount() != 3 {
		t.Fatalf("expected every batch attempted, got %d", channel.batchCount())
	}
}

func TestDispatcherDispatchBulkWithoutChannel(t *testing.T) {
	d := NewDispatcher(nil, &notificationStoreStub{}, nil, fixedNow, DispatcherConfig{})

	results := d.DispatchBulk(context.Background(), []PushRequest{{Token: "tok-0"}, {Token: "tok-1"}})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for i, r := range results {
		var chErr *ChannelError
		if r.Delivered || !errors.As(r.Err, &chErr) {
			t.Fatalf("result %d: expected channel error, got %#v", i, r)
		}
	}
}

func TestDispatcherNotify(t *testing.T) {
	t.Run("in-app for all and single push", func(t *testing.T) {
		notes := &notificationStoreStub{}
		channel := &pushChannelStub{}
		d := NewDispatcher(channel, notes, sequentialIDs("ntf"), fixedNow, DispatcherConfig{})

		report := d.Notify(context.Background(), []User{{ID: "u1", PushToken: tokenPtr("tok-1")}, {ID: "u2"}}, OutboundMessage{
			Type:    NotificationUpdate,
			Title:   "Changed",
			EventID: stringPtr("evt-1"),
		})
		if report.InAppErr != nil || len(report.InApp) != 2 {
			t.Fatalf("unexpected in-app outcome %#v", report)
		}
		if report.InApp[0].ID != "ntf-1" || !report.InApp[0].CreatedAt.Equal(testNow) {
			t.Fatalf("unexpected notification %#v", report.InApp[0])
		}
		if len(report.Push) != 1 || !report.Push[0].Delivered {
			t.Fatalf("expected one delivered push, got %#v", report.Push)
		}
		data := channel.batches[0][0].Data
		if data["type"] != string(NotificationUpdate) || data["eventId"] != "evt-1" {
			t.Fatalf("unexpected push data %#v", data)
		}
	})

	t.Run("push still attempted when in-app fails", func(t *testing.T) {
		notes := &notificationStoreStub{err: errors.New("insert failed")}
		channel := &pushChannelStub{}
		d := NewDispatcher(channel, notes, nil, fixedNow, DispatcherConfig{})

		report := d.Notify(context.Background(), []User{{ID: "u1", PushToken: tokenPtr("tok-1")}, {ID: "u2", PushToken: tokenPtr("tok-2")}}, OutboundMessage{Type: NotificationGeneral})
		if report.InAppErr == nil {
			t.Fatalf("expected in-app error")
		}
		if len(report.Push) != 2 || channel.batchCount() != 1 {
			t.Fatalf("expected one bulk push of 2, got %#v", report.Push)
		}
	})
}
