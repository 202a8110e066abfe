package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	clockLayout   = "15:04"
	minutesPerDay = 24 * 60
)

// Границы смещений реальных часовых поясов: UTC-12:00 … UTC+14:00.
const (
	MinOffsetMinutes = -12 * 60
	MaxOffsetMinutes = 14 * 60
)

// ErrInvalidClock возвращается для строк, не являющихся временем "HH:MM".
var ErrInvalidClock = errors.New("некорректное время, ожидается HH:MM")

// ErrInvalidOffset возвращается для смещений вне диапазона реальных поясов.
var ErrInvalidOffset = errors.New("смещение вне диапазона часовых поясов")

func parseClock(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	return hours*60 + minutes, nil
}

func formatClock(totalMinutes int) string {
	totalMinutes = ((totalMinutes % minutesPerDay) + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", totalMinutes/60, totalMinutes%60)
}

// LocalToUTC переводит местное время "HH:MM" в UTC по смещению пояса в
// минутах. Переход через полночь заворачивается в пределах суток.
func LocalToUTC(local string, offsetMinutes int) (string, error) {
	if offsetMinutes < MinOffsetMinutes || offsetMinutes > MaxOffsetMinutes {
		return "", fmt.Errorf("%w: %d", ErrInvalidOffset, offsetMinutes)
	}
	minutes, err := parseClock(local)
	if err != nil {
		return "", err
	}
	return formatClock(minutes - offsetMinutes), nil
}

// UTCToLocal — обратное преобразование: LocalToUTC(UTCToLocal(t, off), off) == t.
func UTCToLocal(utc string, offsetMinutes int) (string, error) {
	if offsetMinutes < MinOffsetMinutes || offsetMinutes > MaxOffsetMinutes {
		return "", fmt.Errorf("%w: %d", ErrInvalidOffset, offsetMinutes)
	}
	minutes, err := parseClock(utc)
	if err != nil {
		return "", err
	}
	return formatClock(minutes + offsetMinutes), nil
}
