package gpu

import (
	"github.com/pkg/errors"

	"fluidsim/core"
)

// Bindings maps kernel slot names to grids plus the optional parameter block.
// A stage keeps one Bindings per kernel and rebinds slots as buffers rotate.
type Bindings struct {
	grids  map[string]Grid
	params *core.Parameters
}

func NewBindings() *Bindings {
	return &Bindings{grids: make(map[string]Grid)}
}

// Set binds grid to the named slot, replacing any previous binding
func (b *Bindings) Set(name string, grid Grid) *Bindings {
	b.grids[name] = grid
	return b
}

// SetParameters binds the uniform block read by Uniform kernels
func (b *Bindings) SetParameters(p *core.Parameters) *Bindings {
	b.params = p
	return b
}

func (b *Bindings) Get(name string) Grid { return b.grids[name] }

func (b *Bindings) Parameters() *core.Parameters { return b.params }

// Resolve orders the bound grids by the kernel's slot table and checks them:
// every slot bound with the right format, whole-grid slots sharing one size,
// boundary scratch grids matching that size collapsed along their face axis,
// and no written grid bound twice. It returns the grids in slot order and
// the whole-grid dimensions.
func (b *Bindings) Resolve(k *Kernel) ([]Grid, core.Dims, error) {
	grids := make([]Grid, len(k.Slots))
	var dims core.Dims
	for i, s := range k.Slots {
		g := b.grids[s.Name]
		if g == nil {
			return nil, dims, errors.Wrapf(ErrBindingMissing, "%s: slot %q", k.Name, s.Name)
		}
		if g.Format() != s.Format {
			return nil, dims, errors.Wrapf(ErrFormatMismatch, "%s: slot %q wants %s, grid %q is %s",
				k.Name, s.Name, s.Format, g.Name(), g.Format())
		}
		if s.Face == Whole {
			if dims == (core.Dims{}) {
				dims = g.Dims()
			} else if g.Dims() != dims {
				return nil, dims, errors.Wrapf(ErrSizeMismatch, "%s: slot %q is %s, expected %s",
					k.Name, s.Name, g.Dims(), dims)
			}
		}
		grids[i] = g
	}
	for i, s := range k.Slots {
		if s.Face == Whole {
			continue
		}
		want := (&Kernel{Axis: s.Face}).Collapse(dims)
		if grids[i].Dims() != want {
			return nil, dims, errors.Wrapf(ErrSizeMismatch, "%s: slot %q is %s, expected %s",
				k.Name, s.Name, grids[i].Dims(), want)
		}
	}
	for i, s := range k.Slots {
		if s.Access == Read {
			continue
		}
		for j := range k.Slots {
			if j != i && grids[j] == grids[i] {
				return nil, dims, errors.Wrapf(ErrAliasedBinding, "%s: grid %q bound to %q and %q",
					k.Name, grids[i].Name(), s.Name, k.Slots[j].Name)
			}
		}
	}
	if k.Uniform && b.params == nil {
		return nil, dims, errors.Wrapf(ErrBindingMissing, "%s: parameters", k.Name)
	}
	return grids, dims, nil
}

// CheckTransfer validates a host slice length against a grid
func CheckTransfer(grid Grid, n int) error {
	if grid == nil {
		return errors.Wrap(ErrBindingMissing, "nil grid")
	}
	if n != grid.Len() {
		return errors.Wrapf(ErrSizeMismatch, "grid %q holds %d values, host slice has %d", grid.Name(), grid.Len(), n)
	}
	return nil
}

// CheckGroups validates that a dispatch covers exactly the bound grid
func CheckGroups(k *Kernel, tile, groups, dims core.Dims) error {
	want := k.Groups(dims, tile)
	if groups != want {
		return errors.Wrapf(ErrSizeMismatch, "%s: %s groups of %s do not cover %s", k.Name, groups, k.Collapse(tile), dims)
	}
	return nil
}
