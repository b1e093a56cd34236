package server

import (
	"fmt"
	"net/http"
	"strings"

	types "github.com/Shyp/go-types"
	"github.com/forgehq/forge/models"
	"github.com/forgehq/forge/rest"
	"github.com/forgehq/forge/storage"
)

// getId validates that the provided ID is valid, and the prefix matches the
// expected prefix. Returns the correct ID, and a boolean describing whether
// the helper has written a response.
func getId(w http.ResponseWriter, r *http.Request, idStr string) (types.PrefixUUID, bool) {
	id, err := types.NewPrefixUUID(idStr)
	if err != nil {
		badRequest(w, r, &rest.Error{
			ID:    "invalid_uuid",
			Title: strings.Replace(err.Error(), "types: ", "", 1),
		})
		return id, true
	}
	if id.Prefix != storage.Prefix {
		badRequest(w, r, &rest.Error{
			ID:    "invalid_prefix",
			Title: fmt.Sprintf("Please use %s for the uuid prefix, not %s", storage.Prefix, id.Prefix),
		})
		return id, true
	}
	return id, false
}

// getRetry attempts to fetch the job, retrying transient errors up to attempts
// times. ErrNotFound is returned immediately.
func getRetry(store storage.Store, id types.PrefixUUID, attempts int) (job *models.BuildJob, err error) {
	for i := 0; i < attempts; i++ {
		job, err = store.Get(id)
		if err == nil || err == storage.ErrNotFound {
			break
		}
	}
	return
}
