package network

import (
	"net/url"
	"strings"

	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
)

// FullURL resolves relativeURL against prefixURL, guaranteeing the result is
// a string-prefix extension of prefixURL. Any attempt at a scheme, host,
// absolute path, or dot-segment escape is rejected. This is a security
// boundary: addon implementations only ever reach their own API prefix.
func FullURL(prefixURL, relativeURL string) (string, error) {
	split, err := url.Parse(relativeURL)
	if err != nil {
		return "", gverrors.New(gverrors.KindInvalidRelativeURL,
			"relative url does not parse", err)
	}
	if split.Scheme != "" || split.Host != "" {
		return "", gverrors.Newf(gverrors.KindInvalidRelativeURL,
			"relative url may not include scheme or host (got %q)", relativeURL)
	}
	if strings.HasPrefix(split.Path, "/") {
		return "", gverrors.Newf(gverrors.KindInvalidRelativeURL,
			"relative url may not be an absolute path starting with \"/\" (got %q)", relativeURL)
	}

	base, err := url.Parse(prefixURL)
	if err != nil {
		return "", gverrors.New(gverrors.KindInvalidRelativeURL,
			"prefix url does not parse", err)
	}
	full := base.ResolveReference(split).String()
	if !strings.HasPrefix(full, prefixURL) {
		return "", gverrors.Newf(gverrors.KindInvalidRelativeURL,
			"relative url may not alter the base url (maybe with dot segments \"/../\"? got %q)", relativeURL)
	}
	return full, nil
}
