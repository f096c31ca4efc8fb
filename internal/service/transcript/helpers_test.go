package transcript

import "transcribe-stream-service/internal/models"

func replace(id string, start, end int, text string) models.ReplaceText {
	return models.ReplaceText{
		ActionData: models.ActionData{ID: id},
		Parameters: models.ReplaceTextParameters{Start: start, End: end, Text: text},
	}
}

func add(id string, start, end int, typ models.AnnotationType) models.AddAnnotation {
	return models.AddAnnotation{
		ActionData: models.ActionData{ID: "act-" + id},
		Parameters: models.AnnotationParameters{ID: id, StartCharIndex: start, EndCharIndex: end, Type: typ},
	}
}

func update(id string, start, end int, typ models.AnnotationType) models.UpdateAnnotation {
	return models.UpdateAnnotation{
		ActionData: models.ActionData{ID: "upd-" + id},
		Parameters: models.AnnotationParameters{ID: id, StartCharIndex: start, EndCharIndex: end, Type: typ},
	}
}

func remove(id string) models.RemoveAnnotation {
	return models.RemoveAnnotation{
		ActionData: models.ActionData{ID: "rm-" + id},
		Parameters: models.RemoveParameters{ID: id},
	}
}

func batch(actions ...models.Action) []models.Action { return actions }

func annotationIDs(anns []models.AddAnnotation) []string {
	ids := make([]string, 0, len(anns))
	for _, a := range anns {
		ids = append(ids, a.Parameters.ID)
	}
	return ids
}
