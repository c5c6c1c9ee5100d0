package main

import (
	"fmt"
	"strconv"
	"strings"
)

// floatList is a repeatable float flag: -temp 30 -temp 50 or -temp 30,50.
type floatList []float64

func (f *floatList) String() string {
	if f == nil {
		return ""
	}
	parts := make([]string, len(*f))
	for i, v := range *f {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (f *floatList) Set(s string) error {
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", part)
		}
		*f = append(*f, v)
	}
	return nil
}
