package contrast

import (
	"github.com/matzehuels/netmeta/pkg/errors"
)

// ValidateContrasts checks contrasts supplied directly by a caller.
//
// Every contrast needs valid study and treatment labels, Treat1 != Treat2,
// a finite TE and a positive, finite SeTE. A study may not compare the
// same pair of treatments twice, in either orientation.
func ValidateContrasts(contrasts []PairwiseContrast) error {
	if len(contrasts) == 0 {
		return errors.Validation("no contrasts provided")
	}

	type pairKey struct{ study, a, b string }
	seen := make(map[pairKey]bool, len(contrasts))

	for i, c := range contrasts {
		if err := errors.ValidateLabel("study", c.Study); err != nil {
			return errors.Wrap(errors.ErrCodeValidation, err, "contrast %d", i+1)
		}
		if err := errors.ValidateLabel("treatment", c.Treat1); err != nil {
			return errors.Wrap(errors.ErrCodeValidation, err, "contrast %d (study %q) treat1", i+1, c.Study)
		}
		if err := errors.ValidateLabel("treatment", c.Treat2); err != nil {
			return errors.Wrap(errors.ErrCodeValidation, err, "contrast %d (study %q) treat2", i+1, c.Study)
		}
		if c.Treat1 == c.Treat2 {
			return errors.Validation("contrast %d (study %q) compares %q with itself", i+1, c.Study, c.Treat1)
		}
		if err := checkContrast(c); err != nil {
			return err
		}
		if c.CovRef < 0 || !finite(c.CovRef) {
			return errors.Validation("contrast %d (study %q): cov_ref must be a non-negative number", i+1, c.Study)
		}

		a, b := c.Treat1, c.Treat2
		if b < a {
			a, b = b, a
		}
		k := pairKey{c.Study, a, b}
		if seen[k] {
			return errors.Validation("study %q compares %s and %s more than once", c.Study, a, b)
		}
		seen[k] = true
	}
	return nil
}
