package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CouponFile is the on-disk shape of COUPONS_FILE:
//
//	coupons:
//	  - code: DBS10
//	    percent: 10
type CouponFile struct {
	Coupons []struct {
		Code    string `yaml:"code"`
		Percent int64  `yaml:"percent"`
	} `yaml:"coupons"`
}

// LoadCoupons reads the coupon allow-list override. An empty path returns nil
// so callers fall back to the built-in list.
func LoadCoupons(path string) (map[string]int64, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read coupons file: %w", err)
	}
	return ParseCoupons(b)
}

func ParseCoupons(b []byte) (map[string]int64, error) {
	var f CouponFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode coupons file: %w", err)
	}
	out := make(map[string]int64, len(f.Coupons))
	for _, c := range f.Coupons {
		code := strings.ToLower(strings.TrimSpace(c.Code))
		if code == "" {
			return nil, fmt.Errorf("coupon with empty code")
		}
		if c.Percent <= 0 || c.Percent > 100 {
			return nil, fmt.Errorf("coupon %s: percent %d out of range", code, c.Percent)
		}
		out[code] = c.Percent
	}
	return out, nil
}
