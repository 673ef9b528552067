package server

import (
	"bytes"
	"net/http"
	"time"

	"github.com/emersion/go-ical"

	"github.com/lectern-app/taskd/recurrence"
	"github.com/lectern-app/taskd/server/auth"
	"github.com/lectern-app/taskd/storage"
)

const icsProductID = "-//lectern//taskd//EN"

// handleCalendarFeed serves the caller's open tasks as an iCalendar feed
// of VTODO components. Recurring roots carry their rule as a canonical
// RRULE plus EXDATE entries, so standard calendar clients project the
// same series the service does.
func (s *Server) handleCalendarFeed(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipalFromContext(r.Context())
	if principal == nil {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	tasks, err := s.store.ListTasks(r.Context(), storage.ListFilter{OwnerID: principal.UserID})
	if err != nil {
		writeStorageErr(w, err)
		return
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, icsProductID)
	cal.Props.SetText(ical.PropVersion, "2.0")

	now := time.Now()
	for i := range tasks {
		task := &tasks[i]
		if task.Status == storage.StatusDone || task.Due == nil {
			continue
		}
		comp, err := taskComponent(task, now)
		if err != nil {
			s.logger.Error("skipping task in feed", "task", task.ID, "error", err)
			continue
		}
		cal.Children = append(cal.Children, comp)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		s.logger.Error("failed to encode calendar feed", "error", err)
		writeErr(w, http.StatusInternalServerError, "failed to encode calendar")
		return
	}

	w.Header().Set(headerContentType, mimeTypeCalendar)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// taskComponent builds one VTODO for the feed.
func taskComponent(task *storage.Task, now time.Time) (*ical.Component, error) {
	due, err := recurrence.ParseDate(*task.Due)
	if err != nil {
		return nil, err
	}

	comp := ical.NewComponent(ical.CompToDo)
	comp.Props.SetText(ical.PropUID, "task-"+task.ID+"@taskd")
	comp.Props.SetText(ical.PropSummary, task.Title)
	comp.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	if task.Description != "" {
		comp.Props.SetText(ical.PropDescription, task.Description)
	}
	setDateProp(comp, ical.PropDue, due)

	if task.IsRoot() && task.RecurrenceRule != nil {
		rule, ok := recurrence.ParseRule(*task.RecurrenceRule).Get()
		if ok {
			text, err := rule.RRuleString()
			if err != nil {
				return nil, err
			}
			// Raw value: SetText would escape the semicolons RRULE
			// needs.
			ruleProp := ical.NewProp(ical.PropRecurrenceRule)
			ruleProp.Value = text
			comp.Props.Set(ruleProp)
			for _, ex := range task.RecurrenceExceptions {
				exDate, err := recurrence.ParseDate(ex)
				if err != nil {
					continue
				}
				addDateProp(comp, ical.PropExceptionDates, exDate)
			}
		}
	}

	return comp, nil
}

// setDateProp sets a date-only (VALUE=DATE) property, replacing any
// existing values.
func setDateProp(comp *ical.Component, name string, date time.Time) {
	prop := ical.NewProp(name)
	prop.SetValueType(ical.ValueDate)
	prop.Value = date.Format("20060102")
	comp.Props.Set(prop)
}

// addDateProp appends a date-only (VALUE=DATE) property value.
func addDateProp(comp *ical.Component, name string, date time.Time) {
	prop := ical.NewProp(name)
	prop.SetValueType(ical.ValueDate)
	prop.Value = date.Format("20060102")
	comp.Props.Add(prop)
}
