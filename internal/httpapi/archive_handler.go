package httpapi

import (
	"net/http"

	"ai_selector/internal/models"
	"ai_selector/internal/queue"
	"ai_selector/internal/utils"
)

type deadLettersResponse struct {
	QueueLength int                                             `json:"queue_length"`
	Items       []queue.DeadLetterItem[models.GenerationRecord] `json:"items"`
}

// handleDeadLetters lists generation records the archive could not write.
func (d *Dependencies) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 100)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	length, err := d.ArchiveWorker.QueueLength(r.Context())
	if err != nil {
		d.respondWithServiceError(w, r, err)
		return
	}
	items, err := d.ArchiveWorker.DeadLetterItems(r.Context(), limit)
	if err != nil {
		d.respondWithServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []queue.DeadLetterItem[models.GenerationRecord]{}
	}
	utils.RespondWithJSON(w, http.StatusOK, deadLettersResponse{QueueLength: length, Items: items})
}

func (d *Dependencies) handleRetryDeadLetter(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := d.ArchiveWorker.RetryDeadLetterItem(r.Context(), id); err != nil {
		d.respondWithServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
