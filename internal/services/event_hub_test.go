package services

import (
	"testing"
	"time"
)

func TestEventHubDeliversPerSession(t *testing.T) {
	hub := NewEventHub(4)
	ch1, cancel1 := hub.Subscribe("s1")
	defer cancel1()
	ch2, cancel2 := hub.Subscribe("s2")
	defer cancel2()

	hub.Publish(SessionEvent{Type: EventTurn, SessionID: "s1", Data: 1})

	select {
	case ev := <-ch1:
		if ev.Type != EventTurn || ev.SessionID != "s1" || ev.Timestamp.IsZero() {
			t.Errorf("事件内容不正确: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("s1 没有收到事件")
	}
	select {
	case ev := <-ch2:
		t.Fatalf("s2 不应该收到 s1 的事件: %+v", ev)
	default:
	}
}

func TestEventHubDropsWhenFull(t *testing.T) {
	hub := NewEventHub(1)
	ch, cancel := hub.Subscribe("s1")
	defer cancel()

	hub.Publish(SessionEvent{Type: EventTurn, SessionID: "s1"})
	hub.Publish(SessionEvent{Type: EventReset, SessionID: "s1"})

	if ev := <-ch; ev.Type != EventTurn {
		t.Errorf("应该保留第一个事件, got %s", ev.Type)
	}
	select {
	case ev := <-ch:
		t.Errorf("缓冲区满时应该丢弃, got %+v", ev)
	default:
	}
}

func TestEventHubCancelAndClose(t *testing.T) {
	hub := NewEventHub(0)
	ch1, cancel1 := hub.Subscribe("s1")
	_, cancel2 := hub.Subscribe("s1")
	if hub.Subscribers("s1") != 2 {
		t.Fatalf("subscribers = %d", hub.Subscribers("s1"))
	}

	cancel1()
	cancel1()
	if _, ok := <-ch1; ok {
		t.Errorf("取消后通道应该关闭")
	}
	if hub.Subscribers("s1") != 1 {
		t.Errorf("subscribers = %d", hub.Subscribers("s1"))
	}

	hub.Close("s1")
	if hub.Subscribers("s1") != 0 {
		t.Errorf("Close 之后 subscribers = %d", hub.Subscribers("s1"))
	}
	// Close 之后再取消不能重复关闭通道
	cancel2()
}
