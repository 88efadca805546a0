package wizard

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ignatij/ingestctl/pkg/models"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

type ScheduleType string

const (
	TimeBased   ScheduleType = "time_based"
	FileArrival ScheduleType = "file_arrival"
)

type Frequency string

const (
	Hourly  Frequency = "hourly"
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// ScheduleSpec is how the user asked the job to be triggered.
type ScheduleSpec struct {
	Type       ScheduleType `json:"type" yaml:"type"`
	Frequency  Frequency    `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	TimeOfDay  string       `json:"time,omitempty" yaml:"time,omitempty"` // "HH:MM"
	DayOfWeek  string       `json:"day_of_week,omitempty" yaml:"day_of_week,omitempty"`
	DayOfMonth int          `json:"day_of_month,omitempty" yaml:"day_of_month,omitempty"`
}

var weekdays = map[string]int{
	"sunday": 0, "monday": 1, "tuesday": 2, "wednesday": 3,
	"thursday": 4, "friday": 5, "saturday": 6,
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func parseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, errors.Errorf("time %q must be HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, errors.Errorf("time %q has an invalid hour", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, errors.Errorf("time %q has an invalid minute", s)
	}
	return hour, minute, nil
}

// CronExpression renders a time-based schedule as a standard five-field
// cron expression and checks that it parses.
func (s ScheduleSpec) CronExpression() (string, error) {
	if s.Type != TimeBased {
		return "", errors.Errorf("schedule type %q has no cron expression", s.Type)
	}
	hour, minute, err := parseTimeOfDay(s.TimeOfDay)
	if err != nil {
		return "", err
	}
	var expr string
	switch s.Frequency {
	case Hourly:
		expr = fmt.Sprintf("%d * * * *", minute)
	case Daily:
		expr = fmt.Sprintf("%d %d * * *", minute, hour)
	case Weekly:
		dow, ok := weekdays[strings.ToLower(strings.TrimSpace(s.DayOfWeek))]
		if !ok {
			return "", errors.Errorf("weekly schedule needs a day of week, got %q", s.DayOfWeek)
		}
		expr = fmt.Sprintf("%d %d * * %d", minute, hour, dow)
	case Monthly:
		dom := s.DayOfMonth
		if dom == 0 {
			dom = 1
		}
		if dom < 1 || dom > 28 {
			return "", errors.Errorf("monthly schedule day %d must be between 1 and 28", s.DayOfMonth)
		}
		expr = fmt.Sprintf("%d %d %d * *", minute, hour, dom)
	default:
		return "", errors.Errorf("unknown frequency %q", s.Frequency)
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return "", errors.Wrapf(err, "cron expression %q", expr)
	}
	return expr, nil
}

func (s ScheduleSpec) TriggerType() models.TriggerType {
	if s.Type == FileArrival {
		return models.FileArrivalTrigger
	}
	return models.ScheduleTrigger
}

// Details converts the schedule into the job's schedule metadata. File-arrival
// schedules have none.
func (s ScheduleSpec) Details() (*models.ScheduleDetails, error) {
	if s.Type == FileArrival {
		return nil, nil
	}
	expr, err := s.CronExpression()
	if err != nil {
		return nil, err
	}
	d := &models.ScheduleDetails{
		Frequency: string(s.Frequency),
		Time:      strings.TrimSpace(s.TimeOfDay),
		Cron:      expr,
	}
	switch s.Frequency {
	case Weekly:
		d.DayOfWeek = strings.ToLower(strings.TrimSpace(s.DayOfWeek))
	case Monthly:
		d.DayOfMonth = s.DayOfMonth
		if d.DayOfMonth == 0 {
			d.DayOfMonth = 1
		}
	}
	return d, nil
}

// NextRuns lists the next n times a time-based schedule fires after from.
func (s ScheduleSpec) NextRuns(from time.Time, n int) ([]time.Time, error) {
	expr, err := s.CronExpression()
	if err != nil {
		return nil, err
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "cron expression %q", expr)
	}
	runs := make([]time.Time, 0, n)
	t := from
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		runs = append(runs, t)
	}
	return runs, nil
}
