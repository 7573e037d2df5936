// Package autosave keeps an in-progress registration form synchronised with
// the durable draft store.
//
// A Controller is owned by one mounted form. It loads the stored draft once,
// then turns every form change into at most one trailing-edge debounced
// write: an upsert while the form has content, a delete once the form is
// cleared back to its zero state. Write failures are logged and never reach
// the form.
package autosave
