package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/infodesk/internal/inforequests"
	"github.com/infodesk/internal/mail"
)

// applicantHeader carries the identity established by the upstream proxy.
const applicantHeader = "X-Applicant-Id"

func (s *Server) applicantID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Request().Header.Get(applicantHeader), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "missing applicant identity")
	}
	return id, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, inforequests.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, inforequests.ErrValidation),
		errors.Is(err, inforequests.ErrDissolved),
		errors.Is(err, inforequests.ErrNotExtendable):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, inforequests.ErrProtocol),
		errors.Is(err, inforequests.ErrNotOldest),
		errors.Is(err, inforequests.ErrClosed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Msg("Request failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

type ingressRecipient struct {
	Name string `json:"name"`
	Mail string `json:"mail"`
	Kind string `json:"kind"`
}

type ingressRequest struct {
	EnvelopeID string            `json:"envelope_id"`
	FromName   string            `json:"from_name"`
	FromMail   string            `json:"from_mail"`
	Subject    string            `json:"subject"`
	Text       string            `json:"text"`
	HTML       string            `json:"html"`
	Headers    map[string]string `json:"headers"`
	Recipients []ingressRecipient `json:"recipients"`
}

func (s *Server) ingressMail(c echo.Context) error {
	var req ingressRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}

	in := &inforequests.InboundEmail{
		EnvelopeID: req.EnvelopeID,
		FromName:   req.FromName,
		FromMail:   req.FromMail,
		Subject:    req.Subject,
		Text:       req.Text,
		HTML:       req.HTML,
		Headers:    req.Headers,
	}
	for _, r := range req.Recipients {
		kind := mail.KindTo
		switch r.Kind {
		case "cc":
			kind = mail.KindCc
		case "bcc":
			kind = mail.KindBcc
		}
		in.Recipients = append(in.Recipients, mail.Recipient{
			Name: r.Name, Mail: r.Mail, Kind: kind,
		})
	}

	id, err := s.dispatcher.Dispatch(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"message_id": id})
}

type obligeeResponse struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Street string `json:"street"`
	City   string `json:"city"`
	Zip    string `json:"zip"`
	Slug   string `json:"slug"`
}

func (s *Server) searchObligees(c echo.Context) error {
	query := c.QueryParam("query")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	found, err := s.obligees.Search(c.Request().Context(), query, 20)
	if err != nil {
		return httpError(err)
	}
	res := make([]obligeeResponse, 0, len(found))
	for _, o := range found {
		res = append(res, obligeeResponse{
			ID: o.ID, Name: o.Name, Street: o.Street, City: o.City, Zip: o.Zip, Slug: o.Slug,
		})
	}
	return c.JSON(http.StatusOK, res)
}

type createInforequestRequest struct {
	ObligeeID int64  `json:"obligee_id"`
	FullName  string `json:"full_name"`
	Street    string `json:"street"`
	City      string `json:"city"`
	Zip       string `json:"zip"`
	Email     string `json:"email"`
	Subject   string `json:"subject"`
	Content   string `json:"content"`
}

type actionResponse struct {
	ID              int64    `json:"id"`
	Type            string   `json:"type"`
	Subject         string   `json:"subject,omitempty"`
	EffectiveDate   string   `json:"effective_date"`
	FileNumber      string   `json:"file_number,omitempty"`
	Deadline        *int     `json:"deadline,omitempty"`
	Extension       int      `json:"extension,omitempty"`
	DeadlineDate    string   `json:"deadline_date,omitempty"`
	Remaining       *int     `json:"remaining,omitempty"`
	Missed          bool     `json:"missed,omitempty"`
	DisclosureLevel int16    `json:"disclosure_level,omitempty"`
	RefusalReasons  []string `json:"refusal_reasons,omitempty"`
}

type branchResponse struct {
	ID         int64            `json:"id"`
	ObligeeID  int64            `json:"obligee_id"`
	Main       bool             `json:"main"`
	AdvancedBy int64            `json:"advanced_by,omitempty"`
	Actions    []actionResponse `json:"actions"`
}

type inforequestResponse struct {
	ID             int64            `json:"id"`
	UniqueEmail    string           `json:"unique_email"`
	SubmissionDate string           `json:"submission_date"`
	Closed         bool             `json:"closed"`
	Branches       []branchResponse `json:"branches"`
}

func (s *Server) renderAction(a *inforequests.Action) actionResponse {
	d := s.service.Deadlines()
	res := actionResponse{
		ID:              a.ID,
		Type:            a.Type.String(),
		Subject:         a.Subject,
		EffectiveDate:   a.EffectiveDate.Format("2006-01-02"),
		FileNumber:      a.FileNumber,
		Extension:       a.Extension,
		DisclosureLevel: int16(a.DisclosureLevel),
	}
	if a.HasDeadline {
		deadline := a.Deadline
		res.Deadline = &deadline
		if date, ok := d.Date(a); ok {
			res.DeadlineDate = date.Format("2006-01-02")
		}
		if remaining, ok := d.Remaining(a); ok {
			res.Remaining = &remaining
			res.Missed = remaining < 0
		}
	}
	for _, r := range a.RefusalReasons {
		res.RefusalReasons = append(res.RefusalReasons, string(r))
	}
	return res
}

func (s *Server) renderInforequest(ir *inforequests.Inforequest) inforequestResponse {
	res := inforequestResponse{
		ID:             ir.ID,
		UniqueEmail:    ir.UniqueEmail,
		SubmissionDate: ir.SubmissionDate.Format("2006-01-02"),
		Closed:         ir.Closed,
	}
	for _, b := range ir.Branches {
		br := branchResponse{
			ID:         b.ID,
			ObligeeID:  b.ObligeeID,
			Main:       b.IsMain(),
			AdvancedBy: b.AdvancedByID,
			Actions:    []actionResponse{},
		}
		for _, a := range b.Actions {
			br.Actions = append(br.Actions, s.renderAction(a))
		}
		res.Branches = append(res.Branches, br)
	}
	return res
}

func (s *Server) createInforequest(c echo.Context) error {
	applicantID, err := s.applicantID(c)
	if err != nil {
		return err
	}
	var req createInforequestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}

	ir, err := s.service.CreateInforequest(c.Request().Context(), inforequests.Applicant{
		ID:       applicantID,
		FullName: req.FullName,
		Street:   req.Street,
		City:     req.City,
		Zip:      req.Zip,
		Email:    req.Email,
	}, req.ObligeeID, req.Subject, req.Content)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, s.renderInforequest(ir))
}

func (s *Server) getInforequest(c echo.Context) error {
	applicantID, err := s.applicantID(c)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed id")
	}
	ir, err := s.service.Store().GetInforequestOwned(c.Request().Context(), id, applicantID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s.renderInforequest(ir))
}

type undecidedResponse struct {
	MessageID int64  `json:"message_id"`
	Processed string `json:"processed"`
	FromName  string `json:"from_name,omitempty"`
	FromMail  string `json:"from_mail"`
	Subject   string `json:"subject"`
}

func (s *Server) listUndecided(c echo.Context) error {
	applicantID, err := s.applicantID(c)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed id")
	}
	if _, err := s.service.Store().GetInforequestOwned(c.Request().Context(), id, applicantID); err != nil {
		return httpError(err)
	}
	queue, err := s.service.Store().ListUndecided(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	res := make([]undecidedResponse, 0, len(queue))
	for _, u := range queue {
		res = append(res, undecidedResponse{
			MessageID: u.MessageID,
			Processed: u.Processed.Format(time.RFC3339),
			FromName:  u.FromName,
			FromMail:  u.FromMail,
			Subject:   u.Subject,
		})
	}
	return c.JSON(http.StatusOK, res)
}

type obligeeActionRequest struct {
	BranchID        int64    `json:"branch_id"`
	Type            int16    `json:"type"`
	Subject         string   `json:"subject"`
	Content         string   `json:"content"`
	EffectiveDate   string   `json:"effective_date"`
	FileNumber      string   `json:"file_number"`
	Deadline        *int     `json:"deadline"`
	DisclosureLevel int16    `json:"disclosure_level"`
	RefusalReasons  []string `json:"refusal_reasons"`
	AdvancedTo      []int64  `json:"advanced_to"`
	MessageID       int64    `json:"message_id"`
}

func (s *Server) addObligeeAction(c echo.Context) error {
	applicantID, err := s.applicantID(c)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed id")
	}
	var req obligeeActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}
	date, err := time.Parse("2006-01-02", req.EffectiveDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed effective date")
	}

	params := inforequests.ObligeeActionParams{
		InforequestID:   id,
		BranchID:        req.BranchID,
		Type:            inforequests.ActionType(req.Type),
		Subject:         req.Subject,
		Content:         req.Content,
		EffectiveDate:   date,
		FileNumber:      req.FileNumber,
		Deadline:        req.Deadline,
		DisclosureLevel: inforequests.DisclosureLevel(req.DisclosureLevel),
		AdvancedTo:      req.AdvancedTo,
		MessageID:       req.MessageID,
	}
	for _, r := range req.RefusalReasons {
		params.RefusalReasons = append(params.RefusalReasons, inforequests.RefusalReason(r))
	}

	action, err := s.service.AddObligeeAction(c.Request().Context(), applicantID, params)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, s.renderAction(action))
}

type draftRequest struct {
	BranchID        int64    `json:"branch_id"`
	Type            int16    `json:"type"`
	Subject         string   `json:"subject"`
	Content         string   `json:"content"`
	EffectiveDate   string   `json:"effective_date"`
	FileNumber      string   `json:"file_number"`
	DisclosureLevel int16    `json:"disclosure_level"`
	RefusalReasons  []string `json:"refusal_reasons"`
	AdvancedTo      []int64  `json:"advanced_to"`
}

type draftResponse struct {
	BranchID        int64    `json:"branch_id,omitempty"`
	Type            int16    `json:"type,omitempty"`
	Subject         string   `json:"subject,omitempty"`
	Content         string   `json:"content,omitempty"`
	EffectiveDate   string   `json:"effective_date,omitempty"`
	FileNumber      string   `json:"file_number,omitempty"`
	DisclosureLevel int16    `json:"disclosure_level,omitempty"`
	RefusalReasons  []string `json:"refusal_reasons,omitempty"`
	AdvancedTo      []int64  `json:"advanced_to,omitempty"`
	Modified        string   `json:"modified"`
}

func (s *Server) saveDraft(c echo.Context) error {
	applicantID, err := s.applicantID(c)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed id")
	}
	var req draftRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}

	draft := &inforequests.ActionDraft{
		InforequestID:   id,
		BranchID:        req.BranchID,
		Type:            inforequests.ActionType(req.Type),
		Subject:         req.Subject,
		Content:         req.Content,
		FileNumber:      req.FileNumber,
		DisclosureLevel: inforequests.DisclosureLevel(req.DisclosureLevel),
		AdvancedTo:      req.AdvancedTo,
	}
	if req.EffectiveDate != "" {
		date, err := time.Parse("2006-01-02", req.EffectiveDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "malformed effective date")
		}
		draft.EffectiveDate = date
	}
	for _, r := range req.RefusalReasons {
		draft.RefusalReasons = append(draft.RefusalReasons, inforequests.RefusalReason(r))
	}

	if err := s.service.SaveDraft(c.Request().Context(), applicantID, draft); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getDraft(c echo.Context) error {
	applicantID, err := s.applicantID(c)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed id")
	}
	draft, err := s.service.Draft(c.Request().Context(), applicantID, id)
	if err != nil {
		return httpError(err)
	}

	res := draftResponse{
		BranchID:        draft.BranchID,
		Type:            int16(draft.Type),
		Subject:         draft.Subject,
		Content:         draft.Content,
		FileNumber:      draft.FileNumber,
		DisclosureLevel: int16(draft.DisclosureLevel),
		AdvancedTo:      draft.AdvancedTo,
		Modified:        draft.Modified.Format(time.RFC3339),
	}
	if !draft.EffectiveDate.IsZero() {
		res.EffectiveDate = draft.EffectiveDate.Format("2006-01-02")
	}
	for _, r := range draft.RefusalReasons {
		res.RefusalReasons = append(res.RefusalReasons, string(r))
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) discardDraft(c echo.Context) error {
	applicantID, err := s.applicantID(c)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed id")
	}
	if err := s.service.DiscardDraft(c.Request().Context(), applicantID, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type classifyRequest struct {
	MessageID   int64  `json:"message_id"`
	Disposition string `json:"disposition"`
}

func (s *Server) classify(c echo.Context) error {
	applicantID, err := s.applicantID(c)
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed id")
	}
	var req classifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}

	ctx := c.Request().Context()
	switch req.Disposition {
	case "unrelated":
		err = s.service.ClassifyUnrelated(ctx, applicantID, id, req.MessageID)
	case "unknown":
		err = s.service.ClassifyUnknown(ctx, applicantID, id, req.MessageID)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown disposition")
	}
	if err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type messageRequest struct {
	Subject string `json:"subject"`
	Content string `json:"content"`
}

func (s *Server) addClarificationResponse(c echo.Context) error {
	applicantID, err := s.applicantID(c)
	if err != nil {
		return err
	}
	id, branchID, err := pathIDs(c)
	if err != nil {
		return err
	}
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}
	action, err := s.service.AddClarificationResponse(c.Request().Context(),
		applicantID, id, branchID, req.Subject, req.Content)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, s.renderAction(action))
}

func (s *Server) addAppeal(c echo.Context) error {
	applicantID, err := s.applicantID(c)
	if err != nil {
		return err
	}
	id, branchID, err := pathIDs(c)
	if err != nil {
		return err
	}
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}
	action, err := s.service.AddAppeal(c.Request().Context(),
		applicantID, id, branchID, req.Subject, req.Content)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, s.renderAction(action))
}

type extensionRequest struct {
	WorkingDays int `json:"working_days"`
}

func (s *Server) grantExtension(c echo.Context) error {
	applicantID, err := s.applicantID(c)
	if err != nil {
		return err
	}
	id, branchID, err := pathIDs(c)
	if err != nil {
		return err
	}
	var req extensionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}
	action, err := s.service.GrantExtension(c.Request().Context(),
		applicantID, id, branchID, req.WorkingDays)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s.renderAction(action))
}

func pathIDs(c echo.Context) (int64, int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "malformed id")
	}
	branchID, err := strconv.ParseInt(c.Param("branch"), 10, 64)
	if err != nil {
		return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "malformed branch id")
	}
	return id, branchID, nil
}
