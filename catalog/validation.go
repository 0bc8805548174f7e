package catalog

import "strings"

// SplitTags flattens repeated, comma-separated tag values, trimming blanks.
func SplitTags(values ...string) []string {
	tags := make([]string, 0, len(values))
	for _, v := range values {
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}

	return tags
}

func validateSubmit(req SubmitRequest) error {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return newInvalidInputError("name cannot be empty")
	case strings.TrimSpace(req.VersionName) == "":
		return newInvalidInputError("version_name cannot be empty")
	case req.File == nil:
		return newInvalidInputError("file is required")
	}

	return nil
}

func validateReplace(req ReplaceRequest) error {
	if req.ID == 0 {
		return newInvalidInputError("id is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return newInvalidInputError("name cannot be empty")
	}

	seen := make(map[string]struct{}, len(req.Versions))
	for _, v := range req.Versions {
		if v.Name == "" || v.Hash == "" {
			return newInvalidInputError("versions need a name and a hash")
		}
		if _, dup := seen[v.Name]; dup {
			return newInvalidInputError("duplicate version " + v.Name)
		}
		seen[v.Name] = struct{}{}
	}

	return nil
}
