package memory

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Memory is an amount of memory in bytes.
type Memory int64

const (
	Byte     Memory = 1
	Kilobyte        = 1024 * Byte
	Megabyte        = 1024 * Kilobyte
	Gigabyte        = 1024 * Megabyte
)

func (d Memory) Bytes() int64 { return int64(d) }

func (d Memory) Kilobytes() int64 { return int64(d) / int64(Kilobyte) }

func (d Memory) Megabytes() int64 { return int64(d) / int64(Megabyte) }

func (d Memory) Gigabytes() int64 { return int64(d) / int64(Gigabyte) }

func (d Memory) String() string {
	switch {
	case d >= Gigabyte && d%Gigabyte == 0:
		return fmt.Sprintf("%dg", d.Gigabytes())
	case d >= Megabyte && d%Megabyte == 0:
		return fmt.Sprintf("%dm", d.Megabytes())
	case d >= Kilobyte && d%Kilobyte == 0:
		return fmt.Sprintf("%dk", d.Kilobytes())
	default:
		return fmt.Sprintf("%db", d.Bytes())
	}
}

// Parse reads sizes in the docker style: a number with an optional b, k, m
// or g suffix, e.g. 256m.
func Parse(value string) (Memory, error) {
	value = strings.ToLower(strings.TrimSpace(value))

	if value == "" {
		return 0, errors.New("empty memory size")
	}

	unit := Byte

	switch value[len(value)-1] {
	case 'b':
		value = value[:len(value)-1]
	case 'k':
		unit, value = Kilobyte, value[:len(value)-1]
	case 'm':
		unit, value = Megabyte, value[:len(value)-1]
	case 'g':
		unit, value = Gigabyte, value[:len(value)-1]
	}

	amount, err := strconv.ParseInt(value, 10, 64)

	if err != nil || amount < 0 {
		return 0, errors.Errorf("invalid memory size %q", value)
	}

	return Memory(amount) * unit, nil
}

// LimitExceeded is the error returned by the runner if and when the total
// allocated memory has been exceeded.
var LimitExceeded error = memoryLimitExceededError{}

type memoryLimitExceededError struct{}

func (memoryLimitExceededError) Error() string { return "memory limit exceeded" }
