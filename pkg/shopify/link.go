package shopify

import (
	"net/url"
	"strings"
)

// NextPageInfo extracts the page_info token of the rel="next" entry of a
// Link header, or "" when there is none.
//
//	<https://shop.myshopify.com/admin/api/2024-01/orders.json?limit=250&page_info=abc>; rel="next"
func NextPageInfo(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}

		isNext := false
		for _, attr := range segments[1:] {
			attr = strings.TrimSpace(attr)
			if strings.EqualFold(attr, `rel="next"`) || strings.EqualFold(attr, "rel=next") {
				isNext = true
				break
			}
		}
		if !isNext {
			continue
		}

		raw := strings.TrimSpace(segments[0])
		raw = strings.TrimPrefix(raw, "<")
		raw = strings.TrimSuffix(raw, ">")
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		return u.Query().Get("page_info")
	}
	return ""
}
