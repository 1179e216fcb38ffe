package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// FilterMap applies fn to every element of in and keeps the results for which
// fn reported true, preserving input order. The input is split into chunks of
// chunkSize elements processed by at most workers goroutines. When workers is
// below 2 or the input fits into a single chunk, fn runs on the calling
// goroutine. The first error returned by fn cancels the remaining chunks and
// is returned without any results.
func FilterMap[T any, R any](
	ctx context.Context,
	in []T,
	workers, chunkSize int,
	fn func(T) (R, bool, error),
) ([]R, error) {
	if chunkSize <= 0 {
		chunkSize = len(in)
	}
	if workers < 2 || len(in) <= chunkSize {
		return filterMapChunk(ctx, in, fn)
	}

	chunks := (len(in) + chunkSize - 1) / chunkSize
	parts := make([][]R, chunks)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for c := 0; c < chunks; c++ {
		lo := c * chunkSize
		hi := min(lo+chunkSize, len(in))
		group.Go(func() error {
			out, err := filterMapChunk(groupCtx, in[lo:hi], fn)
			if err != nil {
				return err
			}
			parts[c] = out
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]R, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

func filterMapChunk[T any, R any](ctx context.Context, in []T, fn func(T) (R, bool, error)) ([]R, error) {
	out := make([]R, 0, len(in))
	for _, v := range in {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, keep, err := fn(v)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, r)
		}
	}
	return out, nil
}
