package media

// FallbackContentType is what every object was uploaded as before content
// types were derived from the extension.
const FallbackContentType = "audio/mpeg"

var contentTypes = map[string]string{
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"m4a":  "audio/mp4",
	"flac": "audio/flac",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"ogg":  "audio/ogg",
}

// ContentType maps a filename's extension to a MIME type, falling back to
// FallbackContentType for anything unknown.
func ContentType(filename string) string {
	if ct, ok := LookupContentType(filename); ok {
		return ct
	}

	return FallbackContentType
}

func LookupContentType(filename string) (string, bool) {
	ct, ok := contentTypes[Extension(filename)]
	return ct, ok
}
