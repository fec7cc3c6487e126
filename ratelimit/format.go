// utilitário pequeno para formatação rápida/consistente de valores numéricos em headers.
//    Padroniza a formatação do float (strconv.FormatFloat), evitando notação científica em
//    valores comuns

package ratelimit

import "strconv"

func formatInt64(v int64) string { return strconv.FormatInt(v, 10) }

func formatFloat(v float64) string {
	// sem notação científica para valores comuns
	return strconv.FormatFloat(v, 'f', -1, 64)
}
