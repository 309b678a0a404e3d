package immoscout

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	mobileAPIBase = "https://api.mobile.immobilienscout24.de"
	searchListURL = mobileAPIBase + "/search/list"
	exposeURLFmt  = mobileAPIBase + "/expose/%d"

	pageParam = "pagenumber"
)

var webHosts = map[string]bool{
	"www.immobilienscout24.de": true,
	"immobilienscout24.de":     true,
}

// realEstateTypes maps the last path segment of a web search to the
// mobile API's realestatetype value.
var realEstateTypes = map[string]string{
	"wohnung-mieten":       "apartmentrent",
	"wohnung-kaufen":       "apartmentbuy",
	"neubauwohnung-kaufen": "apartmentbuy",
	"haus-mieten":          "houserent",
	"haus-kaufen":          "housebuy",
	"neubauhaus-kaufen":    "housebuy",
	"wg-zimmer":            "flatshareroom",
	"wohnen-auf-zeit":      "shorttermaccommodation",
	"grundstueck-kaufen":   "livingbuysite",
	"grundstueck-mieten":   "livingrentsite",
	"garage-mieten":        "garagerent",
	"garage-kaufen":        "garagebuy",
}

// Parameters that only steer the website.
var webOnlyParams = map[string]bool{
	"enteredFrom": true,
	"viewMode":    true,
}

var sortingValues = map[string]string{
	"2": "-firstactivation",
}

type queryParam struct {
	key, value string
}

// ConvertWebToMobile rewrites a www.immobilienscout24.de search result URL
// (https://www.immobilienscout24.de/Suche/de/berlin/berlin/wohnung-mieten?price=-1000.0)
// into the mobile API search URL. Query parameters keep their order.
func ConvertWebToMobile(webURL string) (string, error) {
	u, err := url.Parse(webURL)
	if err != nil {
		return "", invalidf("parse web url %q: %v", webURL, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", invalidf("web url %q: unsupported scheme %q", webURL, u.Scheme)
	}
	if !webHosts[strings.ToLower(u.Hostname())] {
		return "", invalidf("web url %q: host %q is not immobilienscout24.de", webURL, u.Hostname())
	}

	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) < 3 || segs[0] != "Suche" {
		return "", invalidf("web url %q: path is not a /Suche/<area>/<type> search", webURL)
	}
	slug := strings.ToLower(segs[len(segs)-1])
	reType, ok := realEstateTypes[slug]
	if !ok {
		return "", invalidf("web url %q: unknown real estate type %q", webURL, slug)
	}

	params, err := parseQuery(u.RawQuery)
	if err != nil {
		return "", invalidf("web url %q: %v", webURL, err)
	}

	area := segs[1 : len(segs)-1]
	out := make([]queryParam, 0, len(params)+3)
	switch {
	case len(area) == 1 && area[0] == "radius":
		if !hasParam(params, "geocoordinates") {
			return "", invalidf("web url %q: radius search without geocoordinates", webURL)
		}
		out = append(out, queryParam{"searchType", "radius"}, queryParam{"realestatetype", reType})
	case len(area) == 1 && area[0] == "shape":
		if !hasParam(params, "shape") {
			return "", invalidf("web url %q: shape search without shape", webURL)
		}
		out = append(out, queryParam{"searchType", "shape"}, queryParam{"realestatetype", reType})
	default:
		out = append(out,
			queryParam{"searchType", "region"},
			queryParam{"realestatetype", reType},
			queryParam{"geocodes", "/" + strings.Join(area, "/")},
		)
	}

	for _, p := range params {
		if webOnlyParams[p.key] {
			continue
		}
		if p.key == "sorting" {
			if v, ok := sortingValues[p.value]; ok {
				p.value = v
			}
		}
		out = append(out, p)
	}

	return searchListURL + "?" + encodeQuery(out), nil
}

// PageURL selects one page of a mobile search URL. An existing pagenumber
// parameter is replaced in place; every other parameter is kept verbatim.
func PageURL(mobileURL string, page int) (string, error) {
	if page < 1 {
		return "", invalidf("page %d: pages start at 1", page)
	}
	u, err := url.Parse(mobileURL)
	if err != nil {
		return "", invalidf("parse mobile url %q: %v", mobileURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", invalidf("mobile url %q is not absolute", mobileURL)
	}

	rest, fragment, hasFragment := strings.Cut(mobileURL, "#")
	base, rawQuery, _ := strings.Cut(rest, "?")

	pageValue := pageParam + "=" + strconv.Itoa(page)
	parts := make([]string, 0, strings.Count(rawQuery, "&")+2)
	replaced := false
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		if key, _, _ := strings.Cut(part, "="); key == pageParam {
			if replaced {
				continue
			}
			part, replaced = pageValue, true
		}
		parts = append(parts, part)
	}
	if !replaced {
		parts = append(parts, pageValue)
	}

	out := base + "?" + strings.Join(parts, "&")
	if hasFragment {
		out += "#" + fragment
	}
	return out, nil
}

// ExposeDetailsURL builds the exposé endpoint for one listing.
func ExposeDetailsURL(listingID int64) (string, error) {
	if listingID < 1 {
		return "", invalidf("listing id %d: must be positive", listingID)
	}
	return fmt.Sprintf(exposeURLFmt, listingID), nil
}

// parseQuery is url.ParseQuery without the map, so order survives.
func parseQuery(raw string) ([]queryParam, error) {
	var params []queryParam
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("query key %q: %w", k, err)
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("query value for %q: %w", key, err)
		}
		params = append(params, queryParam{key, value})
	}
	return params, nil
}

func encodeQuery(params []queryParam) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}

func hasParam(params []queryParam, key string) bool {
	for _, p := range params {
		if p.key == key {
			return true
		}
	}
	return false
}
