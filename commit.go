package diffset

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Field limits for uploaded commits.
const (
	CommitIDMaxLength = 64
	NameMaxLength     = 256
	EmailMaxLength    = 256
)

// SCMTool describes the identifier conventions of a version control system.
type SCMTool struct {
	Name     string
	CommitID *regexp.Regexp // Valid commit and parent IDs
	Dialect  Dialect        // Dialect its diffs are usually in
}

// Known SCM tools.
var (
	ToolGit = SCMTool{
		Name:     "git",
		CommitID: regexp.MustCompile(`^[0-9a-fA-F]{4,64}$`),
		Dialect:  DialectGit,
	}
	ToolMercurial = SCMTool{
		Name:     "hg",
		CommitID: regexp.MustCompile(`^[0-9a-fA-F]{12,40}$`),
		Dialect:  DialectMercurial,
	}
	ToolSubversion = SCMTool{
		Name:     "svn",
		CommitID: regexp.MustCompile(`^[0-9]+$`),
		Dialect:  DialectUnified,
	}
	ToolGeneric = SCMTool{
		Name:     "generic",
		CommitID: regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@/-]*$`),
		Dialect:  DialectAuto,
	}
)

// LookupTool returns the SCM tool with the given name.
func LookupTool(name string) (SCMTool, bool) {
	for _, t := range []SCMTool{ToolGit, ToolMercurial, ToolSubversion, ToolGeneric} {
		if t.Name == name {
			return t, true
		}
	}
	if name == "mercurial" {
		return ToolMercurial, true
	}
	if name == "subversion" {
		return ToolSubversion, true
	}
	return SCMTool{}, false
}

// CommitInput is commit metadata as received from an upload, before
// validation.
type CommitInput struct {
	CommitID       string
	ParentID       string
	Message        string
	AuthorName     string
	AuthorEmail    string
	AuthorDate     string
	CommitterName  string
	CommitterEmail string
	CommitterDate  string
}

// Signature identifies who made a commit and when.
type Signature struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	When  time.Time `json:"when"`
}

// CommitMetadata is validated commit metadata.
type CommitMetadata struct {
	CommitID  string    `json:"commit_id"`
	ParentID  string    `json:"parent_id"`
	Message   string    `json:"message"`
	Author    Signature `json:"author"`
	Committer Signature `json:"committer"`
}

// ParseCommitMetadata validates in against tool's conventions. All field
// errors are collected and returned together as ValidationErrors.
func ParseCommitMetadata(tool SCMTool, in CommitInput) (CommitMetadata, error) {
	var errs ValidationErrors

	meta := CommitMetadata{
		CommitID: strings.TrimSpace(in.CommitID),
		ParentID: strings.TrimSpace(in.ParentID),
		Message:  in.Message,
	}

	errs = append(errs, validateCommitID(tool, "commit_id", meta.CommitID)...)
	errs = append(errs, validateCommitID(tool, "parent_id", meta.ParentID)...)
	if strings.TrimSpace(in.Message) == "" {
		errs = append(errs, ValidationError{Field: "commit_message", Reason: ReasonRequired})
	}

	meta.Author.Name = strings.TrimSpace(in.AuthorName)
	meta.Author.Email = strings.TrimSpace(in.AuthorEmail)
	errs = append(errs, validateName("author_name", meta.Author.Name, true)...)
	errs = append(errs, validateEmail("author_email", meta.Author.Email, true)...)
	if when, err := parseDate("author_date", in.AuthorDate, true); err != nil {
		errs = append(errs, *err)
	} else {
		meta.Author.When = when
	}

	meta.Committer.Name = strings.TrimSpace(in.CommitterName)
	meta.Committer.Email = strings.TrimSpace(in.CommitterEmail)
	errs = append(errs, validateName("committer_name", meta.Committer.Name, false)...)
	errs = append(errs, validateEmail("committer_email", meta.Committer.Email, false)...)
	if when, err := parseDate("committer_date", in.CommitterDate, false); err != nil {
		errs = append(errs, *err)
	} else {
		meta.Committer.When = when
	}

	if len(errs) > 0 {
		return CommitMetadata{}, errs
	}

	// Committer fields default to the author's.
	if meta.Committer.Name == "" {
		meta.Committer.Name = meta.Author.Name
	}
	if meta.Committer.Email == "" {
		meta.Committer.Email = meta.Author.Email
	}
	if meta.Committer.When.IsZero() {
		meta.Committer.When = meta.Author.When
	}

	return meta, nil
}

// ValidateCommitID checks id against the tool's length and format rules.
// Errors are reported against field.
func ValidateCommitID(tool SCMTool, field, id string) error {
	if errs := validateCommitID(tool, field, id); len(errs) > 0 {
		return errs
	}
	return nil
}

func validateCommitID(tool SCMTool, field, id string) ValidationErrors {
	switch {
	case id == "":
		return ValidationErrors{{Field: field, Reason: ReasonRequired}}
	case len(id) > CommitIDMaxLength:
		return ValidationErrors{{Field: field, Reason: ReasonTooLong, Value: id, Limit: CommitIDMaxLength}}
	case tool.CommitID != nil && !tool.CommitID.MatchString(id):
		return ValidationErrors{{Field: field, Reason: ReasonInvalidFormat, Value: id}}
	}
	return nil
}

func validateName(field, name string, required bool) ValidationErrors {
	switch {
	case name == "" && required:
		return ValidationErrors{{Field: field, Reason: ReasonRequired}}
	case len(name) > NameMaxLength:
		return ValidationErrors{{Field: field, Reason: ReasonTooLong, Value: name, Limit: NameMaxLength}}
	}
	return nil
}

func validateEmail(field, email string, required bool) ValidationErrors {
	switch {
	case email == "":
		if required {
			return ValidationErrors{{Field: field, Reason: ReasonRequired}}
		}
	case len(email) > EmailMaxLength:
		return ValidationErrors{{Field: field, Reason: ReasonTooLong, Value: email, Limit: EmailMaxLength}}
	case !strings.Contains(email, "@") || strings.ContainsAny(email, " \t<>"):
		return ValidationErrors{{Field: field, Reason: ReasonInvalidFormat, Value: email}}
	}
	return nil
}

// isoLayouts lists the ISO-8601 calendar forms accepted for commit dates.
// Fractional seconds are accepted after any seconds field. Ordinal and week
// dates are rewritten to calendar dates before matching.
var isoLayouts = buildISOLayouts()

func buildISOLayouts() []string {
	var layouts []string
	for _, date := range []string{"2006-01-02", "20060102"} {
		for _, sep := range []string{"T", " "} {
			for _, clock := range []string{"15:04:05", "15:04", "150405", "1504", "15"} {
				for _, zone := range []string{"Z07:00", "Z0700", "Z07", ""} {
					layouts = append(layouts, date+sep+clock+zone)
				}
			}
		}
		layouts = append(layouts, date)
	}
	return layouts
}

// ParseISO8601 parses s as an ISO-8601 date or date-time. Values without a
// zone are taken as UTC.
func ParseISO8601(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	date, rest := s, ""
	if i := strings.IndexAny(s, "T "); i >= 0 {
		date, rest = s[:i], s[i:]
	}
	if m := ordinalDateRe.FindStringSubmatch(date); m != nil {
		d, ok := ordinalDate(m[1], m[2])
		if !ok {
			return time.Time{}, false
		}
		s = d + rest
	} else if m := weekDateRe.FindStringSubmatch(date); m != nil {
		d, ok := weekDate(m[1], m[2], m[3])
		if !ok {
			return time.Time{}, false
		}
		s = d + rest
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var (
	ordinalDateRe = regexp.MustCompile(`^(\d{4})-?(\d{3})$`)
	weekDateRe    = regexp.MustCompile(`^(\d{4})-?W(\d{2})(?:-?([1-7]))?$`)
)

// ordinalDate converts year and day-of-year (2024-060) to a calendar date.
func ordinalDate(year, day string) (string, bool) {
	y, _ := strconv.Atoi(year)
	n, _ := strconv.Atoi(day)
	t := time.Date(y, time.January, n, 0, 0, 0, 0, time.UTC)
	if n < 1 || t.Year() != y {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

// weekDate converts an ISO week date (2024-W01-1) to a calendar date. A
// missing weekday means Monday.
func weekDate(year, week, weekday string) (string, bool) {
	y, _ := strconv.Atoi(year)
	w, _ := strconv.Atoi(week)
	d := 1
	if weekday != "" {
		d, _ = strconv.Atoi(weekday)
	}
	jan4 := time.Date(y, time.January, 4, 0, 0, 0, 0, time.UTC)
	monday := jan4.AddDate(0, 0, -((int(jan4.Weekday()) + 6) % 7))
	t := monday.AddDate(0, 0, (w-1)*7+d-1)
	if gotY, gotW := t.ISOWeek(); w < 1 || gotY != y || gotW != w {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

func parseDate(field, value string, required bool) (time.Time, *ValidationError) {
	if strings.TrimSpace(value) == "" {
		if required {
			return time.Time{}, &ValidationError{Field: field, Reason: ReasonRequired}
		}
		return time.Time{}, nil
	}
	t, ok := ParseISO8601(value)
	if !ok {
		return time.Time{}, &ValidationError{Field: field, Reason: ReasonInvalidDate, Value: value}
	}
	return t, nil
}
