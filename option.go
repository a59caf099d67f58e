package bqship

// Option configures a Runner.
type Option interface {
	apply(*Runner) error
}

type optionFunc func(*Runner) error

func (f optionFunc) apply(r *Runner) error {
	return f(r)
}

// WithObjectSink replaces the default Cloud Storage sink.
func WithObjectSink(s ObjectSink) Option {
	return optionFunc(func(r *Runner) error {
		r.sink = s
		return nil
	})
}

// WithCompressor replaces the default gzip compressor.
func WithCompressor(c Compressor) Option {
	return optionFunc(func(r *Runner) error {
		r.comp = c
		return nil
	})
}

// WithNotifier configures per-table result notifications.
func WithNotifier(n Notifier) Option {
	return optionFunc(func(r *Runner) error {
		r.notifier = n
		return nil
	})
}
