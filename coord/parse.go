package coord

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseRange expands a comma separated list of integers and inclusive integer
// ranges into individual values, in order. For example:
//
//	ParseRange("0..3, 7") // returns []int{0, 1, 2, 3, 7}
//
// Values outside [0, max) are rejected.
//
func ParseRange(s string, max int) ([]int, error) {
	var r []int
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, errors.Errorf("empty item in range %q", s)
		}
		vs, err := expandRange(item)
		if err != nil {
			return nil, errors.Wrapf(err, "expand %q", item)
		}
		for _, v := range vs {
			if v < 0 || v >= max {
				return nil, errors.Errorf("value %d out of range [0, %d)", v, max)
			}
		}
		r = append(r, vs...)
	}
	return r, nil
}

func expandRange(item string) ([]int, error) {
	i := strings.Index(item, "..")
	if i < 0 {
		v, err := strconv.Atoi(item)
		if err != nil {
			return nil, err
		}
		return []int{v}, nil
	}
	start, err := strconv.Atoi(strings.TrimSpace(item[:i]))
	if err != nil {
		return nil, err
	}
	end, err := strconv.Atoi(strings.TrimSpace(item[i+2:]))
	if err != nil {
		return nil, err
	}
	if end < start {
		return nil, errors.New("range end before range start")
	}
	r := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		r = append(r, i)
	}
	return r, nil
}
