package app

import (
	"testing"

	"github.com/hylla/labbook/internal/domain"
)

func TestChangeFeedFanOut(t *testing.T) {
	feed := NewChangeFeed()
	var tasks, all int
	cancelTasks := feed.Subscribe(domain.TableTasks, func(domain.ChangeEvent) { tasks++ })
	cancelAll := feed.Subscribe(domain.TableAll, func(domain.ChangeEvent) { all++ })
	defer cancelAll()

	feed.Publish(domain.ChangeEvent{Table: domain.TableTasks})
	feed.Publish(domain.ChangeEvent{Table: domain.TableSamples})
	if tasks != 1 || all != 2 {
		t.Fatalf("tasks=%d all=%d, want 1 and 2", tasks, all)
	}

	cancelTasks()
	cancelTasks()
	feed.Publish(domain.ChangeEvent{Table: domain.TableTasks})
	if tasks != 1 || all != 3 {
		t.Fatalf("after cancel tasks=%d all=%d, want 1 and 3", tasks, all)
	}
	if feed.Subscribers() != 1 {
		t.Fatalf("Subscribers() = %d, want 1", feed.Subscribers())
	}
}

func TestChangeFeedSubscriberMayUnsubscribeDuringPublish(t *testing.T) {
	feed := NewChangeFeed()
	calls := 0
	var cancel func()
	cancel = feed.Subscribe(domain.TableAll, func(domain.ChangeEvent) {
		calls++
		cancel()
	})
	feed.Publish(domain.ChangeEvent{Table: domain.TableProjects})
	feed.Publish(domain.ChangeEvent{Table: domain.TableProjects})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
