package imagecodec

// DecodeError reports a file that could not be read as an image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "imagecodec: decode image: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// CropError reports a crop source that could not be loaded or decoded.
type CropError struct {
	Source string
	Err    error
}

func (e *CropError) Error() string {
	return "imagecodec: crop " + describeSource(e.Source) + ": " + e.Err.Error()
}

func (e *CropError) Unwrap() error { return e.Err }

func describeSource(src string) string {
	if IsDataURL(src) {
		return "data url"
	}
	if len(src) > 64 {
		return src[:64] + "..."
	}
	return src
}
