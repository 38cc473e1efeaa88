package documents

func lineFromInput(in LineInput) Line {
	l := Line{
		ItemID:          in.ItemID,
		Concept:         in.Concept,
		Description:     in.Description,
		Quantity:        in.Quantity,
		UnitPrice:       in.UnitPrice,
		DiscountPercent: in.DiscountPercent,
		TaxPercent:      in.TaxPercent,
		GroupingTag:     in.GroupingTag,
		LineOrder:       in.LineOrder,
	}
	l.Recalculate()
	return l
}

func linesFromInputs(in []LineInput) []Line {
	out := make([]Line, len(in))
	for i, li := range in {
		out[i] = lineFromInput(li)
	}
	return out
}
