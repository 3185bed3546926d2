package admission

type Validator[T any] interface {
	Validate(obj T) error
}

type CompoundValidator[T any] struct {
	validators []Validator[T]
}

func NewCompoundValidator[T any](validators ...Validator[T]) CompoundValidator[T] {
	return CompoundValidator[T]{
		validators: validators,
	}
}

// Validate runs the validators in order and stops at the first failure. Validators may
// also fill in defaults, so later validators see the effect of earlier ones.
func (c CompoundValidator[T]) Validate(obj T) error {
	for _, v := range c.validators {
		err := v.Validate(obj)
		if err != nil {
			return err
		}
	}
	return nil
}
