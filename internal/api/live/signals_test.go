package live

import "testing"

func TestSignals(t *testing.T) {
	s, err := ParseSignals([]byte(`{"interval":15,"time":"08:30","pickMode":true,"lon":14.5,"date":""}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Int("interval"); got != 15 {
		t.Fatalf("interval=%d, want 15", got)
	}
	if got := s.String("time"); got != "08:30" {
		t.Fatalf("time=%q", got)
	}
	if !s.Bool("pickMode") {
		t.Fatal("pickMode=false")
	}
	if got := s.Float("lon"); got != 14.5 {
		t.Fatalf("lon=%v", got)
	}
	if !s.Has("date") || s.Has("search") {
		t.Fatalf("Has: date=%v search=%v", s.Has("date"), s.Has("search"))
	}
	if got := s.Int("time"); got != 0 {
		t.Fatalf("Int on a string=%d, want 0", got)
	}
}

func TestSignalsInputRejectsBadJSON(t *testing.T) {
	in := &SignalsInput{RawBody: []byte(`{`)}
	if _, err := in.MustParse(); err == nil {
		t.Fatal("bad body accepted")
	}
}
