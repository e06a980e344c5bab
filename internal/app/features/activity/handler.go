// internal/app/features/activity/handler.go
package activity

import (
	"context"
	"net/http"
	"time"

	uierrors "github.com/dalemusser/securenotes/internal/app/features/errors"
	activitystore "github.com/dalemusser/securenotes/internal/app/store/activity"
	"github.com/dalemusser/securenotes/internal/app/system/auth"
	"github.com/dalemusser/securenotes/internal/app/system/timeouts"
	"github.com/dalemusser/securenotes/internal/app/system/viewdata"
	"github.com/dalemusser/securenotes/internal/domain/models"
	"go.uber.org/zap"
)

// History is the read side of the activity log.
type History interface {
	ListByUser(ctx context.Context, userID int64, limit int64) ([]models.ActivityLogEntry, error)
}

// Handler serves the signed-in user's own activity history.
type Handler struct {
	History History
	Log     *zap.Logger
	ErrLog  *uierrors.ErrorLogger
	Pages   *uierrors.Handler
}

// NewHandler creates a new activity Handler.
func NewHandler(history History, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if errLog == nil {
		errLog = uierrors.NewErrorLogger(logger)
	}
	return &Handler{
		History: history,
		ErrLog:  errLog,
		Log:     logger,
		Pages:   uierrors.NewHandler(),
	}
}

// ItemVM is one row of the history table.
type ItemVM struct {
	EventType string
	When      string
	IPAddress string
}

// ListVM is the view model for the history page.
type ListVM struct {
	viewdata.BaseVM
	Items []ItemVM
}

// ServeList renders the last activitystore.HistoryLimit events for the
// current user, newest first. Sessions that have not completed both factors
// get a 404 so the page's existence is not revealed.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	st := auth.CurrentState(r)
	if !st.IsAuthenticated() {
		h.Pages.NotFound(w, r)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "activity history")
	defer cancel()

	entries, err := h.History.ListByUser(ctx, st.UserID, activitystore.HistoryLimit)
	if err != nil {
		h.ErrLog.Log(r, "failed to load activity history", err)
		h.Pages.InternalError(w, r)
		return
	}

	vm := ListVM{BaseVM: viewdata.New(r, "Activity")}
	for _, e := range entries {
		vm.Items = append(vm.Items, ItemVM{
			EventType: e.EventType,
			When:      e.CreatedAt.UTC().Format(time.RFC3339),
			IPAddress: e.IPAddress,
		})
	}
	viewdata.Render(w, r, http.StatusOK, "activity", vm)
}
