package guard

import (
	"context"
	"fmt"

	"github.com/conclave-sh/conclave/internal/errors"
	"github.com/conclave-sh/conclave/internal/policy"
	"github.com/conclave-sh/conclave/internal/vector"
)

// IndexPolicy loads a policy document's articles and prohibited
// actions into the similarity index the semantic screen queries.
func IndexPolicy(ctx context.Context, index vector.Index, doc *policy.Document) error {
	if index == nil || doc == nil {
		return errors.Wrap(errors.ErrInvalidInput, "index policy")
	}

	for _, article := range doc.Articles {
		id := fmt.Sprintf("%s/v%d/%s", doc.ID, doc.Version, article.ID)
		if err := index.Add(ctx, id, article.Title+". "+article.Text); err != nil {
			return errors.Wrapf(err, "index article %s", article.ID)
		}
	}
	for i, prohibited := range doc.ProhibitedActions {
		id := fmt.Sprintf("%s/v%d/prohibited-%d", doc.ID, doc.Version, i)
		if err := index.Add(ctx, id, prohibited); err != nil {
			return errors.Wrapf(err, "index prohibited action %d", i)
		}
	}
	return nil
}
