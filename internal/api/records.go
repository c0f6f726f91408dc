package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/biotrack/biotrack/internal/filter"
	"github.com/biotrack/biotrack/internal/record"
)

// RecordResponse is the JSON form of a record.
type RecordResponse struct {
	ID             string          `json:"id"`
	Kind           record.Kind     `json:"kind"`
	Origin         record.Origin   `json:"origin"`
	RemoteID       string          `json:"remoteId,omitempty"`
	OwnerID        string          `json:"ownerId"`
	OwnerName      string          `json:"ownerName,omitempty"`
	CommonName     string          `json:"commonName"`
	ScientificName string          `json:"scientificName,omitempty"`
	Description    string          `json:"description,omitempty"`
	Location       record.Location `json:"location"`
	Details        record.Details  `json:"details,omitempty"`
	ImageRef       string          `json:"imageRef,omitempty"`
	Status         record.Status   `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
	ReviewerID     string          `json:"reviewerId,omitempty"`
	ReviewedAt     *time.Time      `json:"reviewedAt,omitempty"`
	ReviewNotes    string          `json:"reviewNotes,omitempty"`
}

// NewRecordResponse converts a record for the wire.
func NewRecordResponse(r record.Record) RecordResponse {
	return RecordResponse{
		ID:             r.ID,
		Kind:           r.Kind,
		Origin:         r.Origin,
		RemoteID:       r.RemoteID,
		OwnerID:        r.OwnerID,
		OwnerName:      r.OwnerName,
		CommonName:     r.CommonName,
		ScientificName: r.ScientificName,
		Description:    r.Description,
		Location:       r.Location,
		Details:        r.Details,
		ImageRef:       r.ImageRef,
		Status:         r.Status,
		CreatedAt:      r.CreatedAt,
		ReviewerID:     r.ReviewerID,
		ReviewedAt:     r.ReviewedAt,
		ReviewNotes:    r.ReviewNotes,
	}
}

// RecordListResponse wraps a list of records.
type RecordListResponse struct {
	Records []RecordResponse `json:"records"`
	Count   int              `json:"count"`
}

func newRecordList(records []record.Record) RecordListResponse {
	out := RecordListResponse{Records: make([]RecordResponse, len(records)), Count: len(records)}
	for i := range records {
		out.Records[i] = NewRecordResponse(records[i])
	}
	return out
}

// EditRequest is an owner correction. Absent fields are left unchanged.
type EditRequest struct {
	CommonName     *string              `json:"commonName"`
	ScientificName *string              `json:"scientificName"`
	Description    *string              `json:"description"`
	Location       *record.Location     `json:"location"`
	Flora          *record.FloraDetails `json:"flora"`
	Fauna          *record.FaunaDetails `json:"fauna"`
	ImageRef       *string              `json:"imageRef"`
}

func (r *EditRequest) toEdit() (record.Edit, error) {
	if r.Flora != nil && r.Fauna != nil {
		return record.Edit{}, record.NewValidationError("details", "send either flora or fauna details")
	}
	e := record.Edit{
		CommonName:     r.CommonName,
		ScientificName: r.ScientificName,
		Description:    r.Description,
		Location:       r.Location,
		ImageRef:       r.ImageRef,
	}
	switch {
	case r.Flora != nil:
		e.Details = *r.Flora
	case r.Fauna != nil:
		e.Details = *r.Fauna
	}
	return e, nil
}

// ReviewRequest is a status decision.
type ReviewRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// ReviewResponse is returned by the review endpoint. RemoteError is set, with
// status 202, when the decision was applied locally but not upstream.
type ReviewResponse struct {
	Record      RecordResponse `json:"record"`
	OldStatus   record.Status  `json:"oldStatus"`
	NewStatus   record.Status  `json:"newStatus"`
	ReviewedBy  string         `json:"reviewedBy"`
	RemoteError string         `json:"remoteError,omitempty"`
}

func parseKind(c echo.Context) (record.Kind, error) {
	return record.ParseKind(c.Param("kind"))
}

// listRecords serves GET /records?view=&kind=&status=. Without a view,
// reviewers get every record and everyone else the approved ones.
func (s *Server) listRecords(c echo.Context) error {
	ctx := c.Request().Context()
	actor := actorFrom(c)

	var kind record.Kind
	if k := c.QueryParam("kind"); k != "" {
		parsed, err := record.ParseKind(k)
		if err != nil {
			return err
		}
		kind = parsed
	}

	view := filter.ViewName(strings.ToLower(strings.TrimSpace(c.QueryParam("view"))))
	var (
		records []record.Record
		err     error
	)
	if view == "" && actor.Role.CanReview() {
		records, err = s.service.Records(ctx)
		records = filter.ByKind(records, kind)
	} else {
		if view == "" {
			view = filter.ViewApproved
		}
		records, err = s.service.View(ctx, view, actor.ID, kind)
	}
	if err != nil {
		return err
	}

	if st := c.QueryParam("status"); st != "" {
		status, err := record.ParseStatus(st)
		if err != nil {
			return err
		}
		kept := records[:0:0]
		for _, r := range records {
			if r.Status == status {
				kept = append(kept, r)
			}
		}
		records = kept
	}
	return c.JSON(http.StatusOK, newRecordList(records))
}

// submitRecord serves POST /records. The body is decoded leniently so older
// clients with snake_case keys or a flat location keep working.
func (s *Server) submitRecord(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	raw, err := record.DecodeRaw(body)
	if err != nil {
		return err
	}
	rec, err := s.service.Submit(c.Request().Context(), actorFrom(c), raw)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, NewRecordResponse(rec))
}

// editRecord serves PATCH /records/:kind/:id.
func (s *Server) editRecord(c echo.Context) error {
	kind, err := parseKind(c)
	if err != nil {
		return err
	}
	var req EditRequest
	if err := c.Bind(&req); err != nil {
		return record.NewValidationError("payload", "invalid edit body")
	}
	edit, err := req.toEdit()
	if err != nil {
		return err
	}
	if edit.Empty() {
		return record.NewValidationError("payload", "edit changes nothing")
	}

	rec, err := s.service.Edit(c.Request().Context(), actorFrom(c), kind, c.Param("id"), edit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewRecordResponse(rec))
}

// reviewRecord serves POST /records/:kind/:id/review.
func (s *Server) reviewRecord(c echo.Context) error {
	kind, err := parseKind(c)
	if err != nil {
		return err
	}
	var req ReviewRequest
	if err := c.Bind(&req); err != nil {
		return record.NewValidationError("payload", "invalid review body")
	}
	status, err := record.ParseStatus(req.Status)
	if err != nil {
		return err
	}

	actor := actorFrom(c)
	res, err := s.service.Review(c.Request().Context(), actor, kind, c.Param("id"), status, req.Notes)
	if err != nil {
		return err
	}

	resp := ReviewResponse{
		Record:     NewRecordResponse(res.Record),
		OldStatus:  res.Event.OldStatus,
		NewStatus:  res.Event.NewStatus,
		ReviewedBy: actor.ID,
	}
	code := http.StatusOK
	if res.RemoteErr != nil {
		resp.RemoteError = res.RemoteErr.Error()
		code = http.StatusAccepted
	}
	return c.JSON(code, resp)
}
