package fakeclock

import (
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestClock_Advance(t *testing.T) {
	c := New(epoch)
	if got := c.Now(); !got.Equal(epoch) {
		t.Errorf("Now() = %v, want %v", got, epoch)
	}

	c.Advance(5 * time.Minute)
	if got, want := c.Now(), epoch.Add(5*time.Minute); !got.Equal(want) {
		t.Errorf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestTicker_FiresOnDeadline(t *testing.T) {
	c := New(epoch)
	ticker := c.NewTicker(30 * time.Second)

	c.Advance(29 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired before its interval")
	default:
	}

	c.Advance(time.Second)
	select {
	case got := <-ticker.C():
		if want := epoch.Add(30 * time.Second); !got.Equal(want) {
			t.Errorf("tick = %v, want %v", got, want)
		}
	default:
		t.Fatal("ticker did not fire")
	}
	if c.Tickers() != 1 {
		t.Errorf("Tickers() = %d, want 1", c.Tickers())
	}
}

func TestTicker_DropsUnreadTicks(t *testing.T) {
	c := New(epoch)
	ticker := c.NewTicker(time.Second)

	c.Advance(time.Second)
	c.Advance(time.Second)
	c.Advance(time.Second)

	<-ticker.C()
	select {
	case <-ticker.C():
		t.Error("unread ticks were queued")
	default:
	}
}

func TestTicker_Stop(t *testing.T) {
	c := New(epoch)
	ticker := c.NewTicker(time.Second)
	ticker.Stop()

	c.Advance(time.Minute)
	select {
	case <-ticker.C():
		t.Error("stopped ticker fired")
	default:
	}
}
