package txn

import "fmt"

// Guidance is the structured, actionable diagnosis of a transaction,
// produced for the caller when the verdict is not clean.
type Guidance struct {
	TransactionID string         `json:"transaction_id"`
	Valid         bool           `json:"valid"`
	Items         []GuidanceItem `json:"items,omitempty"`
}

// GuidanceItem describes one artifact that needs operator attention.
type GuidanceItem struct {
	Artifact       string   `json:"artifact"`
	Result         Result   `json:"result"`
	Errors         []string `json:"errors,omitempty"`
	Recommendation string   `json:"recommendation"`
}

// Guidance turns the transaction's failure states into actionable
// diagnostics. Artifacts that ended in VALID or CONTENT_CHANGED are
// omitted: they need nothing from the operator.
func (c *Coordinator) Guidance() *Guidance {
	tx := c.Transaction()
	valid, _ := c.IsValid()

	g := &Guidance{TransactionID: tx.ID, Valid: valid}
	for _, st := range tx.States {
		if st.Result.acceptable() {
			continue
		}
		g.Items = append(g.Items, GuidanceItem{
			Artifact:       st.ArtifactName,
			Result:         st.Result,
			Errors:         st.Errors,
			Recommendation: recommend(st),
		})
	}
	return g
}

func recommend(st State) string {
	switch st.Result {
	case ResultNotFound:
		return fmt.Sprintf("create %s as a local framework file and rerun to import it", st.ArtifactName)
	case ResultValidationError:
		return "fix the framework file (or restore authority connectivity) and rerun; content is validated before any commit"
	case ResultTransactionFailure:
		return "check backing store health, roll back this transaction, then retry from the caller; never retry mid-transaction"
	case ResultVersionMismatch:
		return fmt.Sprintf("requested version %q is not registered for %s; pick a registered version or drop the hint to use the latest", st.RequestedVersion, st.ArtifactName)
	default:
		return "inspect the captured errors"
	}
}
