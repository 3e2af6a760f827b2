package clean

import "testing"

func TestStringStripsControlCharacters(t *testing.T) {
	got := String("a\x00b\x07c", 10)
	if got != "abc" {
		t.Fatalf("expected %q, got %q", "abc", got)
	}
}

func TestStringKeepsTabNewlineCR(t *testing.T) {
	got := String("a\tb\nc\rd", 10)
	if got != "a\tb\nc\rd" {
		t.Fatalf("tab/newline/cr must survive, got %q", got)
	}
}

func TestStringTruncatesAndTrims(t *testing.T) {
	if got := String("  hello world  ", 8); got != "hello" {
		// 8 runes of "  hello world  " is "  hello ", trimmed to "hello"
		t.Fatalf("expected %q, got %q", "hello", got)
	}
	if got := String("", 10); got != "" {
		t.Fatalf("empty in, empty out, got %q", got)
	}
}

func TestIP(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"192.168.1.1", "192.168.1.1"},
		{"0.0.0.0", "0.0.0.0"},
		{"255.255.255.255", "255.255.255.255"},
		{"", "0.0.0.0"},
		{"256.1.1.1", "0.0.0.0"},
		{"1.2.3", "0.0.0.0"},
		{"1.2.3.4.5", "0.0.0.0"},
		{"a.b.c.d", "0.0.0.0"},
		{"::1", "0.0.0.0"},
		{"2001:db8::1", "0.0.0.0"},
		{"1.2.3.-4", "0.0.0.0"},
	}
	for _, c := range cases {
		if got := IP(c.in); got != c.want {
			t.Errorf("IP(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://example.com/x", "https://example.com/x"},
		{"http://example.com/x", "http://example.com/x"},
		{"//cdn.example.com/a.js", "https://cdn.example.com/a.js"},
		{"example.com/landing", "https://example.com/landing"},
		{"/relative/path", "/relative/path"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeURL(c.in); got != c.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("Mozilla/5.0", "1.2.3.4")
	b := Fingerprint("Mozilla/5.0", "1.2.3.4")
	if a == "" || a != b {
		t.Fatalf("fingerprint must be deterministic and non-empty, got %q / %q", a, b)
	}
	if len(a) != 32 {
		t.Fatalf("expected 128-bit hex digest, got len %d", len(a))
	}
	if Fingerprint("", "") != "" {
		t.Fatal("both inputs empty must yield empty fingerprint")
	}
	if Fingerprint("Mozilla/5.0", "1.2.3.4") == Fingerprint("Mozilla/5.0", "1.2.3.5") {
		t.Fatal("different inputs should differ")
	}
}

func TestIsBot(t *testing.T) {
	bots := []string{
		"Googlebot/2.1 (+http://www.google.com/bot.html)",
		"my-CRAWLER v1",
		"spider",
		"scraper-9000",
		"curl/8.4.0",
		"Wget/1.21",
		"python-requests/2.31",
		"Java/17.0.1",
		"Go-http-client/1.1",
	}
	for _, ua := range bots {
		if !IsBot(ua) {
			t.Errorf("IsBot(%q) = false, want true", ua)
		}
	}
	if IsBot("Mozilla/5.0 normal browser") {
		t.Fatal("normal browser flagged as bot")
	}
	if IsBot("") {
		t.Fatal("empty user agent is not a bot")
	}
}
