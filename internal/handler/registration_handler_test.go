package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-activity-api/internal/domain"
	"github.com/noah-isme/sma-activity-api/internal/dto"
	"github.com/noah-isme/sma-activity-api/internal/handler"
)

type mockRegistrationService struct {
	lastRequest dto.RegistrationCreateRequest
	response    dto.RegistrationResponse
	listing     []dto.RegistrationResponse
	err         error
}

func (m *mockRegistrationService) Register(_ context.Context, _ domain.Principal, req dto.RegistrationCreateRequest) (dto.RegistrationResponse, error) {
	m.lastRequest = req
	if m.err != nil {
		return dto.RegistrationResponse{}, m.err
	}
	return m.response, nil
}

func (m *mockRegistrationService) Approve(_ context.Context, _ domain.Principal, _ uint) (dto.RegistrationResponse, error) {
	return m.response, m.err
}

func (m *mockRegistrationService) Reject(_ context.Context, _ domain.Principal, _ uint, _ dto.RegistrationRejectRequest) (dto.RegistrationResponse, error) {
	return m.response, m.err
}

func (m *mockRegistrationService) Cancel(_ context.Context, _ domain.Principal, _ uint) (dto.RegistrationResponse, error) {
	return m.response, m.err
}

func (m *mockRegistrationService) UpdateAttendance(_ context.Context, _ domain.Principal, _ uint, _ dto.AttendanceUpdateRequest) (dto.RegistrationResponse, error) {
	return m.response, m.err
}

func (m *mockRegistrationService) ListByActivity(_ context.Context, _ domain.Principal, _ uint) ([]dto.RegistrationResponse, error) {
	return m.listing, m.err
}

func (m *mockRegistrationService) ListMine(_ context.Context, _ domain.Principal) ([]dto.RegistrationResponse, error) {
	return m.listing, m.err
}

func newRegistrationTestApp(svc *mockRegistrationService, principal *domain.Principal) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/v2/registrations", func(c *fiber.Ctx) error {
		if principal != nil {
			c.Locals("principal", *principal)
		}
		return c.Next()
	})
	handler.NewRegistrationHandler(svc, zerolog.New(io.Discard)).Register(group)
	return app
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(body, target))
}

func TestRegistrationHandler_CreateSuccess(t *testing.T) {
	svc := &mockRegistrationService{response: dto.RegistrationResponse{ID: 1, ActivityID: 7, StudentID: "student-1", Status: "approved"}}
	principal := domain.Principal{UserID: "student-1", Role: domain.RoleStudent}
	app := newRegistrationTestApp(svc, &principal)

	body, err := json.Marshal(dto.RegistrationCreateRequest{ActivityID: 7, Notes: "first timer"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v2/registrations/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var response struct {
		Success bool                     `json:"success"`
		Message string                   `json:"message"`
		Data    dto.RegistrationResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.True(t, response.Success)
	require.Equal(t, "registration created", response.Message)
	require.Equal(t, uint(7), response.Data.ActivityID)
	require.Equal(t, uint(7), svc.lastRequest.ActivityID)
}

func TestRegistrationHandler_CreateRequiresAuth(t *testing.T) {
	svc := &mockRegistrationService{}
	app := newRegistrationTestApp(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v2/registrations/", bytes.NewReader([]byte(`{"activity_id":7}`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.Zero(t, svc.lastRequest.ActivityID)
}

func TestRegistrationHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"conflict", domain.Conflictf("activity 7 is full"), fiber.StatusConflict},
		{"forbidden", domain.Forbiddenf("only students can register"), fiber.StatusForbidden},
		{"not found", domain.NotFoundf("activity 7"), fiber.StatusNotFound},
		{"validation", domain.Validationf("activity id required"), fiber.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockRegistrationService{err: tc.err}
			principal := domain.Principal{UserID: "student-1", Role: domain.RoleStudent}
			app := newRegistrationTestApp(svc, &principal)

			req := httptest.NewRequest(http.MethodPost, "/api/v2/registrations/", bytes.NewReader([]byte(`{"activity_id":7}`)))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			var response struct {
				Success bool   `json:"success"`
				Message string `json:"message"`
			}
			decodeResponse(t, resp, &response)
			require.False(t, response.Success)
			require.NotEmpty(t, response.Message)
		})
	}
}

func TestRegistrationHandler_ApproveInvalidID(t *testing.T) {
	svc := &mockRegistrationService{}
	principal := domain.Principal{UserID: "teacher-1", Role: domain.RoleTeacher}
	app := newRegistrationTestApp(svc, &principal)

	req := httptest.NewRequest(http.MethodPost, "/api/v2/registrations/abc/approve", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRegistrationHandler_ListMine(t *testing.T) {
	svc := &mockRegistrationService{listing: []dto.RegistrationResponse{{ID: 1, ActivityID: 7, StudentID: "student-1", Status: "approved"}}}
	principal := domain.Principal{UserID: "student-1", Role: domain.RoleStudent}
	app := newRegistrationTestApp(svc, &principal)

	req := httptest.NewRequest(http.MethodGet, "/api/v2/registrations/mine", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Success bool                       `json:"success"`
		Data    []dto.RegistrationResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.True(t, response.Success)
	require.Len(t, response.Data, 1)
	require.Equal(t, "approved", response.Data[0].Status)
}
