package settlement

import "errors"

var (
	// ErrNoBalanceFound - verilen hafta için iki şantiye arasında
	// mahsuplaşmamış borç yok
	ErrNoBalanceFound = errors.New("bu hafta için mahsuplaşacak bakiye yok")

	// ErrInvalidTransition - mahsup mevcut durumundan istenen duruma geçemez
	ErrInvalidTransition = errors.New("mahsup bu durumda bu işleme izin vermiyor")

	// ErrInvalidAmount - ödeme tutarı geçersiz
	ErrInvalidAmount = errors.New("ödeme tutarı 0'dan büyük olmalı")
)
