package service

import "time"

const dateLayout = "2006-01-02"

// DayWindow returns the calendar day of t in loc as [start, end).
func DayWindow(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	return start, end
}

// ParseDay parses a YYYY-MM-DD date as midnight in loc.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, validationError("date_required", "A data é obrigatória (formato AAAA-MM-DD)")
	}
	d, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, validationError("invalid_date", "Data inválida: "+s+" (formato AAAA-MM-DD)")
	}
	return d, nil
}

// ParseDateRange turns inclusive date_from/date_to days into the half-open
// instant range [from 00:00, day after to 00:00) in loc.
func ParseDateRange(dateFrom, dateTo string, loc *time.Location) (time.Time, time.Time, error) {
	if dateFrom == "" || dateTo == "" {
		return time.Time{}, time.Time{}, validationError("date_range_required",
			"Os parâmetros date_from e date_to são obrigatórios")
	}

	from, err := ParseDay(dateFrom, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := ParseDay(dateTo, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, validationError("invalid_date_range",
			"date_from deve ser anterior ou igual a date_to")
	}

	_, end := DayWindow(to, loc)
	return from, end, nil
}
