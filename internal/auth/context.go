package auth

import "context"

type subjectKey struct{}

// WithSubject 将调用方写入上下文。
func WithSubject(ctx context.Context, subject *Subject) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext 读取上下文中的调用方。
func SubjectFromContext(ctx context.Context) (*Subject, bool) {
	subject, ok := ctx.Value(subjectKey{}).(*Subject)
	return subject, ok && subject != nil
}
