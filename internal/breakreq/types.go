package breakreq

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of a break request.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusIgnored  Status = "Ignored"
)

// Terminal reports whether no further resolution is possible.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusIgnored
}

// Department is the team a requester belongs to.
type Department string

const (
	DepartmentAML          Department = "AML"
	DepartmentVerification Department = "Verification"
	DepartmentAlert        Department = "Alert"
)

// Departments lists the accepted departments in prompt order.
var Departments = []Department{DepartmentAML, DepartmentVerification, DepartmentAlert}

// Durations lists the accepted break lengths in minutes, in prompt order.
var Durations = []int{5, 10, 15, 20}

var (
	ErrUnknownDepartment = errors.New("unknown department")
	ErrInvalidDuration   = errors.New("invalid duration")
)

// ParseDepartment matches input exactly against the fixed department set.
func ParseDepartment(input string) (Department, error) {
	input = strings.TrimSpace(input)
	for _, d := range Departments {
		if string(d) == input {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDepartment, input)
}

// ParseDuration accepts a positive decimal integer from the allowed set.
func ParseDuration(input string) (int, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.IndexFunc(input, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, input)
	}
	minutes, err := strconv.Atoi(input)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, input)
	}
	for _, allowed := range Durations {
		if minutes == allowed {
			return minutes, nil
		}
	}
	return 0, fmt.Errorf("%w: %d minutes", ErrInvalidDuration, minutes)
}

// Request is the authoritative record of one requester's break request.
type Request struct {
	RequesterID          int64
	RequesterDisplayName string
	Department           Department
	DurationMinutes      int
	Status               Status
	RequestedAt          time.Time
	ResolvedAt           time.Time
	ResolvedBy           string
}

// NewPending builds a pending request, rejecting values outside the fixed sets.
func NewPending(requesterID int64, displayName string, department Department, minutes int, now time.Time) (Request, error) {
	if _, err := ParseDepartment(string(department)); err != nil {
		return Request{}, err
	}
	if _, err := ParseDuration(strconv.Itoa(minutes)); err != nil {
		return Request{}, err
	}
	return Request{
		RequesterID:          requesterID,
		RequesterDisplayName: strings.TrimSpace(displayName),
		Department:           department,
		DurationMinutes:      minutes,
		Status:               StatusPending,
		RequestedAt:          now,
	}, nil
}
