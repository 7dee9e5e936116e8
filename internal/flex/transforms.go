package flex

import (
	"regexp"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Tag helpers available to transform scripts

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	speedRegex      = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(km/h|kmh|kph|mph)?$`)
	refRegex        = regexp.MustCompile(`^(?i)(e|rv|fv|kv|pv|sv|fylkesvei|riksvei)\s*`)
)

// highway classes from most to least important
var highwayRank = map[string]int{
	"motorway":       1,
	"motorway_link":  2,
	"trunk":          3,
	"trunk_link":     4,
	"primary":        5,
	"primary_link":   6,
	"secondary":      7,
	"secondary_link": 8,
	"tertiary":       9,
	"tertiary_link":  10,
	"unclassified":   11,
	"residential":    12,
	"living_street":  13,
	"service":        14,
	"pedestrian":     15,
	"track":          16,
	"cycleway":       17,
	"footway":        18,
	"path":           19,
	"steps":          20,
}

// RegisterTransforms registers the helpers as conflate.transforms and the
// most common ones as globals
func RegisterTransforms(L *lua.LState) {
	transforms := L.NewTable()

	L.SetField(transforms, "trim", L.NewFunction(luaTrim))
	L.SetField(transforms, "lower", L.NewFunction(luaLower))
	L.SetField(transforms, "clean_spaces", L.NewFunction(luaCleanSpaces))

	L.SetField(transforms, "parse_int", L.NewFunction(luaParseInt))
	L.SetField(transforms, "parse_bool", L.NewFunction(luaParseBool))
	L.SetField(transforms, "parse_direction", L.NewFunction(luaParseDirection))
	L.SetField(transforms, "parse_maxspeed", L.NewFunction(luaParseMaxspeed))
	L.SetField(transforms, "normalize_ref", L.NewFunction(luaNormalizeRef))

	L.SetField(transforms, "filter_tags", L.NewFunction(luaFilterTags))
	L.SetField(transforms, "drop_prefix", L.NewFunction(luaDropPrefix))
	L.SetField(transforms, "highway_rank", L.NewFunction(luaHighwayRank))

	conflate := L.GetGlobal("conflate")
	if conflate == lua.LNil {
		conflate = L.NewTable()
		L.SetGlobal("conflate", conflate)
	}
	L.SetField(conflate.(*lua.LTable), "transforms", transforms)

	L.SetGlobal("trim", L.NewFunction(luaTrim))
	L.SetGlobal("parse_int", L.NewFunction(luaParseInt))
	L.SetGlobal("parse_bool", L.NewFunction(luaParseBool))
	L.SetGlobal("filter_tags", L.NewFunction(luaFilterTags))
}

func luaTrim(L *lua.LState) int {
	L.Push(lua.LString(strings.TrimSpace(L.CheckString(1))))
	return 1
}

func luaLower(L *lua.LState) int {
	L.Push(lua.LString(strings.ToLower(L.CheckString(1))))
	return 1
}

// luaCleanSpaces collapses runs of whitespace and trims
func luaCleanSpaces(L *lua.LState) int {
	s := whitespaceRegex.ReplaceAllString(L.CheckString(1), " ")
	L.Push(lua.LString(strings.TrimSpace(s)))
	return 1
}

// luaParseInt parses an integer with an optional default. Decimals are
// truncated.
func luaParseInt(L *lua.LState) int {
	s := strings.TrimSpace(L.CheckString(1))
	def := int64(0)
	if L.GetTop() >= 2 {
		def = L.CheckInt64(2)
	}

	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		L.Push(lua.LNumber(v))
	} else if f, err := strconv.ParseFloat(s, 64); err == nil {
		L.Push(lua.LNumber(int64(f)))
	} else {
		L.Push(lua.LNumber(def))
	}
	return 1
}

func luaParseBool(L *lua.LState) int {
	switch strings.ToLower(strings.TrimSpace(L.CheckString(1))) {
	case "no", "false", "0", "off", "":
		L.Push(lua.LFalse)
	default:
		// any other non-empty value counts as yes in OSM
		L.Push(lua.LTrue)
	}
	return 1
}

// luaParseDirection returns 1 for forward, -1 for backward, 0 otherwise
func luaParseDirection(L *lua.LState) int {
	switch strings.ToLower(strings.TrimSpace(L.CheckString(1))) {
	case "yes", "true", "1":
		L.Push(lua.LNumber(1))
	case "-1", "reverse", "backward":
		L.Push(lua.LNumber(-1))
	default:
		L.Push(lua.LNumber(0))
	}
	return 1
}

// luaParseMaxspeed normalises a speed limit to the OSM form: km/h values
// lose their unit, mph keeps it. Unparseable values return nil.
func luaParseMaxspeed(L *lua.LState) int {
	s := strings.ToLower(strings.TrimSpace(L.CheckString(1)))
	m := speedRegex.FindStringSubmatch(s)
	if m == nil {
		L.Push(lua.LNil)
		return 1
	}
	if m[2] == "mph" {
		L.Push(lua.LString(m[1] + " mph"))
	} else {
		L.Push(lua.LString(m[1]))
	}
	return 1
}

// luaNormalizeRef strips road category prefixes such as "Fv" or "E" and
// internal spaces from a road number
func luaNormalizeRef(L *lua.LState) int {
	s := strings.TrimSpace(L.CheckString(1))
	prefix := refRegex.FindString(s)
	rest := strings.ReplaceAll(s[len(prefix):], " ", "")
	if strings.HasPrefix(strings.ToLower(prefix), "e") && rest != "" {
		// European routes keep their prefix
		rest = "E " + rest
	}
	L.Push(lua.LString(rest))
	return 1
}

// luaFilterTags keeps only the listed keys
// Usage: filter_tags(tags, {"name", "highway", "ref"})
func luaFilterTags(L *lua.LState) int {
	tags := L.CheckTable(1)
	keepKeys := L.CheckTable(2)

	keep := make(map[string]bool)
	keepKeys.ForEach(func(_, v lua.LValue) {
		if s := lua.LVAsString(v); s != "" {
			keep[s] = true
		}
	})

	result := L.NewTable()
	tags.ForEach(func(k, v lua.LValue) {
		if key := lua.LVAsString(k); keep[key] {
			L.SetField(result, key, v)
		}
	})

	L.Push(result)
	return 1
}

// luaDropPrefix returns a copy of tags without keys starting with prefix
func luaDropPrefix(L *lua.LState) int {
	tags := L.CheckTable(1)
	prefix := L.CheckString(2)

	result := L.NewTable()
	tags.ForEach(func(k, v lua.LValue) {
		if key := lua.LVAsString(k); !strings.HasPrefix(key, prefix) {
			L.SetField(result, key, v)
		}
	})

	L.Push(result)
	return 1
}

// luaHighwayRank returns the importance of a highway class, lower is more
// important. Unknown classes rank after all known ones.
func luaHighwayRank(L *lua.LState) int {
	if r, ok := highwayRank[L.CheckString(1)]; ok {
		L.Push(lua.LNumber(r))
	} else {
		L.Push(lua.LNumber(len(highwayRank) + 1))
	}
	return 1
}
