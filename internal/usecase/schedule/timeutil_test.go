package schedule

import (
	"errors"
	"fmt"
	"testing"
)

func TestLocalToUTC(t *testing.T) {
	cases := []struct {
		local  string
		offset int
		want   string
	}{
		{"08:00", 0, "08:00"},
		{"08:00", 420, "01:00"},  // Джакарта, UTC+7
		{"00:30", 60, "23:30"},   // переход через полночь назад
		{"23:30", -120, "01:30"}, // переход через полночь вперёд
		{"12:00", -720, "00:00"}, // крайнее западное смещение
		{"12:00", 840, "22:00"},  // крайнее восточное смещение
	}
	for _, tc := range cases {
		got, err := LocalToUTC(tc.local, tc.offset)
		if err != nil {
			t.Fatalf("LocalToUTC(%s, %d): %v", tc.local, tc.offset, err)
		}
		if got != tc.want {
			t.Fatalf("LocalToUTC(%s, %d) = %s, ожидали %s", tc.local, tc.offset, got, tc.want)
		}
	}
}

func TestClockRoundTrip(t *testing.T) {
	for offset := MinOffsetMinutes; offset <= MaxOffsetMinutes; offset += 15 {
		for minute := 0; minute < minutesPerDay; minute += 7 {
			original := formatClock(minute)
			local, err := UTCToLocal(original, offset)
			if err != nil {
				t.Fatalf("UTCToLocal(%s, %d): %v", original, offset, err)
			}
			back, err := LocalToUTC(local, offset)
			if err != nil {
				t.Fatalf("LocalToUTC(%s, %d): %v", local, offset, err)
			}
			if back != original {
				t.Fatalf("круговое преобразование разошлось: %s → %s → %s (offset %d)", original, local, back, offset)
			}
		}
	}
}

func TestParseClockRejectsGarbage(t *testing.T) {
	for _, value := range []string{"", "8", "8:0:0", "24:00", "12:60", "ab:cd", "-1:30"} {
		t.Run(fmt.Sprintf("%q", value), func(t *testing.T) {
			if _, err := parseClock(value); !errors.Is(err, ErrInvalidClock) {
				t.Fatalf("ожидали ErrInvalidClock для %q, получили %v", value, err)
			}
		})
	}
}

func TestOffsetOutOfRange(t *testing.T) {
	if _, err := LocalToUTC("08:00", MaxOffsetMinutes+1); !errors.Is(err, ErrInvalidOffset) {
		t.Fatalf("ожидали ErrInvalidOffset, получили %v", err)
	}
	if _, err := UTCToLocal("08:00", MinOffsetMinutes-1); !errors.Is(err, ErrInvalidOffset) {
		t.Fatalf("ожидали ErrInvalidOffset, получили %v", err)
	}
}
