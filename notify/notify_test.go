package notify

import "testing"

func TestLiveNotification(t *testing.T) {
	n := LiveNotification("Streamer", "Playing chess", "https://cdn.example/preview-{width}x{height}.jpg", true)
	if n.Title != "Streamer is now live!" {
		t.Errorf("Title = %q", n.Title)
	}
	if n.Message != "Playing chess" {
		t.Errorf("Message = %q", n.Message)
	}
	if n.IconURL != "https://cdn.example/preview-70x70.jpg" {
		t.Errorf("IconURL = %q", n.IconURL)
	}
	if !n.Silent {
		t.Error("Silent = false, want true")
	}
}

func TestIconURLWithoutTemplate(t *testing.T) {
	// URLs without size placeholders pass through untouched.
	const plain = "https://cdn.example/fixed.jpg"
	if got := IconURL(plain); got != plain {
		t.Errorf("IconURL(%q) = %q", plain, got)
	}
}
