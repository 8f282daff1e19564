package services

import (
	"errors"
	"testing"
	"time"
)

func TestParseClientTime(t *testing.T) {
	want := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "trailing Z", input: "2024-03-10T10:00:00Z", want: want},
		{name: "lower case z", input: "2024-03-10T10:00:00z", want: want},
		{name: "fractional seconds", input: "2024-03-10T10:00:00.250Z", want: want.Add(250 * time.Millisecond)},
		{name: "offset", input: "2024-03-10T11:30:00+01:30", want: want},
		{name: "naive is UTC", input: "2024-03-10T10:00:00", want: want},
		{name: "space separator", input: "2024-03-10 10:00:00", want: want},
		{name: "space separator with zone", input: "2024-03-10 10:00:00Z", want: want},
		{name: "naive microseconds", input: "2024-03-10T10:00:00.000001", want: want.Add(time.Microsecond)},
		{name: "minutes only", input: "2024-03-10T10:00", want: want},
		{name: "surrounding whitespace", input: "  2024-03-10T10:00:00Z ", want: want},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "tomorrow", wantErr: true},
		{name: "date only", input: "2024-03-10", wantErr: true},
		{name: "out of range", input: "2024-13-40T10:00:00Z", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClientTime(tt.input)
			if tt.wantErr {
				var tsErr *InvalidTimestampError
				if !errors.As(err, &tsErr) {
					t.Fatalf("expected InvalidTimestampError, got %v", err)
				}
				if tsErr.Value != tt.input {
					t.Errorf("error value = %q, want %q", tsErr.Value, tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if got.Location() != time.UTC {
				t.Errorf("location = %v, want UTC", got.Location())
			}
		})
	}
}

func TestFormatTime(t *testing.T) {
	loc := time.FixedZone("X", 2*60*60)
	got := FormatTime(time.Date(2024, 3, 10, 12, 0, 0, 0, loc))
	if got != "2024-03-10T10:00:00Z" {
		t.Errorf("FormatTime = %q", got)
	}
}
